package query

import "testing"

func TestIsReadOnly(t *testing.T) {
	cases := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM students", true},
		{"  select name from students  ", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"SELECT 1;", true},
		{"", false},
		{"   ", false},
		{"DELETE FROM students", false},
		{"DROP TABLE students", false},
		{"INSERT INTO students VALUES (1)", false},
		{"UPDATE students SET score = 0", false},
		{"SELECT 1; DROP TABLE students", false},
	}
	for _, tc := range cases {
		if got := IsReadOnly(tc.sql); got != tc.want {
			t.Errorf("IsReadOnly(%q) = %v, want %v", tc.sql, got, tc.want)
		}
	}
}
