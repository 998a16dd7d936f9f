package formula

import (
	"testing"
)

func TestEval(t *testing.T) {
	c, err := NewCompiler()
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	params := map[string]any{
		"budget": map[string]any{"monthly": float64(1200)},
		"hours":  float64(10),
		"rate":   float64(15.5),
		"name":   "Maria",
	}

	cases := []struct {
		name    string
		src     string
		want    any
		wantErr bool
	}{
		{name: "arithmetic", src: "params.hours * params.rate", want: float64(155)},
		{name: "nested", src: "params.budget.monthly * 0.25", want: float64(300)},
		{name: "integer literal", src: "2 + 3", want: float64(5)},
		{name: "conditional", src: `params.hours > 8.0 ? "overtime" : "regular"`, want: "overtime"},
		{name: "user", src: `user + ":" + params.name`, want: "ops:Maria"},
		{name: "syntax error", src: "params.hours *", wantErr: true},
		{name: "missing key", src: "params.unknown * 2.0", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Eval(tc.src, params, "ops")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Eval(%q): %v", tc.src, err)
			}
			if got != tc.want {
				t.Errorf("Eval(%q) = %v (%T), want %v", tc.src, got, got, tc.want)
			}
		})
	}
}

func TestCompileCaches(t *testing.T) {
	c, err := NewCompiler()
	if err != nil {
		t.Fatalf("NewCompiler: %v", err)
	}
	if _, err := c.Compile("1.0 + 1.0"); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := c.Compile("1.0 + 1.0"); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if n := len(c.programs); n != 1 {
		t.Errorf("cached programs = %d, want 1", n)
	}
}
