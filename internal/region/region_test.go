package region

import "testing"

func TestRoleString(t *testing.T) {
	if Follower.String() != "follower" || Leader.String() != "leader" {
		t.Fatalf("unexpected role names %q %q", Follower, Leader)
	}
	if Role(42).String() != "unknown" {
		t.Fatalf("unexpected name for unknown role")
	}
}

func TestIDString(t *testing.T) {
	if ID(7).String() != "7" {
		t.Fatalf("unexpected id string %q", ID(7).String())
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	if err != nil || id != 42 {
		t.Fatalf("ParseID(42) = %v, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-1", "x"} {
		if _, err := ParseID(bad); err == nil {
			t.Fatalf("ParseID(%q) should fail", bad)
		}
	}
}
