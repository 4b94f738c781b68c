package app

import "testing"

func TestRefreshTestMode(t *testing.T) {
	cases := map[string]bool{"1": true, "true": true, "0": false, "": false, "yes": false}
	for value, want := range cases {
		t.Setenv(TestModeEnv, value)
		RefreshTestMode()
		if got := InTestMode(); got != want {
			t.Fatalf("%s=%q: expected %v, got %v", TestModeEnv, value, want, got)
		}
	}
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
}
