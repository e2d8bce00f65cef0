package repository

import "testing"

func TestContainsConditionByDialect(t *testing.T) {
	cond, arg := containsConditionByDialect("sqlite", "redirect_token", "ab_c")
	if cond != `redirect_token LIKE ? ESCAPE '\'` {
		t.Fatalf("sqlite condition mismatch: %s", cond)
	}
	if arg != `%ab\_c%` {
		t.Fatalf("escaped arg mismatch: %s", arg)
	}

	cond, _ = containsConditionByDialect("postgres", "slug", "x")
	if cond != `slug ILIKE ? ESCAPE '\'` {
		t.Fatalf("postgres condition mismatch: %s", cond)
	}
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"plain":  "plain",
		"50%":    `50\%`,
		`a\b`:    `a\\b`,
		"tip_01": `tip\_01`,
	}
	for input, want := range cases {
		if got := escapeLike(input); got != want {
			t.Fatalf("escapeLike(%q) want %q got %q", input, want, got)
		}
	}
}
