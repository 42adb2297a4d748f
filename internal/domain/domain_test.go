package domain

import "testing"

func TestValidAppName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"myapp", true},
		{"my-app-2", true},
		{"a", true},
		{"", false},
		{"-leading-dash", false},
		{"trailing-dash-", false},
		{"Has_Underscore", false},
		{"UPPERCASE", false},
	}
	for _, c := range cases {
		if got := ValidAppName(c.name); got != c.want {
			t.Errorf("ValidAppName(%q) = %v, want %v", c.name, got, c.want)
		}
	}

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if ValidAppName(string(long)) {
		t.Error("expected a 64-character name to be rejected")
	}
}

func TestValidPort(t *testing.T) {
	if !ValidPort(1) || !ValidPort(65535) || !ValidPort(8080) {
		t.Error("expected boundary and typical ports to be valid")
	}
	if ValidPort(0) || ValidPort(65536) || ValidPort(-1) {
		t.Error("expected out-of-range ports to be invalid")
	}
}

func TestValidEnvKey(t *testing.T) {
	if !ValidEnvKey("DATABASE_URL") || !ValidEnvKey("port_8080") {
		t.Error("expected alphanumeric/underscore keys to be valid")
	}
	if ValidEnvKey("") || ValidEnvKey("HAS-DASH") || ValidEnvKey("HAS SPACE") {
		t.Error("expected keys with disallowed characters to be invalid")
	}
}

func TestDeploymentStatusIsTerminal(t *testing.T) {
	terminal := []DeploymentStatus{DeployRunning, DeployFailed, DeployCancelled, DeployRolledBack}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	nonTerminal := []DeploymentStatus{DeployQueued, DeployCloning, DeployBuilding, DeployDeploying}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}
