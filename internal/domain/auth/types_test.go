package auth

import (
	"testing"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Employer ")
	if err != nil || r != RoleEmployer {
		t.Fatalf("ParseRole() = %q, %v", r, err)
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestActor_Is(t *testing.T) {
	a := Actor{ID: "u1", Role: RoleWorker}
	if !a.Is(RoleEmployer, RoleWorker) {
		t.Fatalf("expected worker match")
	}
	if a.Is(RoleAdmin) {
		t.Fatalf("did not expect admin")
	}
	if a.Privileged() {
		t.Fatalf("worker should not be privileged")
	}
}

func TestSystemActor(t *testing.T) {
	a := System("payment-runner")
	if !a.Privileged() || a.ID != "system:payment-runner" {
		t.Fatalf("unexpected system actor: %+v", a)
	}
	if a.String() != "system:system:payment-runner" {
		t.Fatalf("unexpected String(): %s", a.String())
	}
}
