package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// smells flags patterns that have caused bugs in the query and chat paths.
func smells(m dsl.Matcher) {
	// Queries must carry the caller's context so the executor deadline applies.
	m.Match(`$db.Query($*_)`, `$db.QueryRow($*_)`, `$db.Exec($*_)`).
		Where((m["db"].Type.Is(`*sql.DB`) || m["db"].Type.Is(`*sql.Conn`) || m["db"].Type.Is(`*sql.Tx`)) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report(`use the Context variant so cancellation and query timeouts reach the driver`)

	// Model-written SQL goes through the guard untouched; never splice values into it.
	m.Match(`$db.QueryContext($ctx, fmt.Sprintf($*_), $*_)`, `$db.ExecContext($ctx, fmt.Sprintf($*_), $*_)`).
		Report(`SQL built with fmt.Sprintf; pass values as bind arguments`)

	// Commits after a cancelled request still have to reach the store.
	m.Match(`$s.Commit(context.Background(), $*_)`).
		Report(`derive the commit context with context.WithoutCancel(ctx) to keep request values`)

	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; merge them with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)
}
