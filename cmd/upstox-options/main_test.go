package main

import "testing"

func TestConfigDirFromArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"chain", "NIFTY"}, ""},
		{[]string{"--config", "/tmp/cfg", "chain"}, "/tmp/cfg"},
		{[]string{"chain", "--config=/etc/upstox"}, "/etc/upstox"},
		{[]string{"chain", "--config"}, ""},
	}
	for _, tt := range tests {
		if got := configDirFromArgs(tt.args); got != tt.want {
			t.Errorf("configDirFromArgs(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
