package permission

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		raw     string
		want    Permission
		wantErr bool
	}{
		{raw: "users.read", want: "users.read"},
		{raw: "Roles.Update", want: "roles.update"},
		{raw: "projects.*", want: "projects.*"},
		{raw: "*.delete", want: "*.delete"},
		{raw: "users", wantErr: true},
		{raw: "users.", wantErr: true},
		{raw: ".read", wantErr: true},
		{raw: "users.manage", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %q", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCompose(t *testing.T) {
	if got := Compose("roles", string(OpRead)); got != "roles.read" {
		t.Fatalf("Compose = %q", got)
	}
	if got := Compose("roles", Wildcard); got != "roles.*" {
		t.Fatalf("Compose wildcard = %q", got)
	}
}

func TestHalves(t *testing.T) {
	p := Permission("documents.update")
	if p.Entity() != "documents" || p.Operation() != "update" {
		t.Fatalf("halves = %q/%q", p.Entity(), p.Operation())
	}
	if p.IsWildcard() {
		t.Fatal("exact key reported as wildcard")
	}
	if !Permission("documents.*").IsWildcard() {
		t.Fatal("entity wildcard not detected")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		name     string
		held     []string
		required Permission
		want     bool
	}{
		{"exact", []string{"roles.read"}, "roles.read", true},
		{"entity wildcard", []string{"roles.*"}, "roles.read", true},
		{"operation wildcard", []string{"*.read"}, "roles.read", true},
		{"unrelated entity", []string{"users.read"}, "roles.read", false},
		{"unrelated operation", []string{"roles.update"}, "roles.read", false},
		{"empty set denies", nil, "roles.read", false},
		{"universal grant not recognized", []string{"*.*"}, "roles.read", false},
		{"case insensitive held", []string{"Roles.Read"}, "roles.read", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewSet(tc.held...).Matches(tc.required); got != tc.want {
				t.Fatalf("Matches(%v, %q) = %v, want %v", tc.held, tc.required, got, tc.want)
			}
		})
	}
}

func TestSetDeduplicates(t *testing.T) {
	s := NewSet("users.read", "users.read", " users.read ", "")
	if len(s) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(s))
	}
}
