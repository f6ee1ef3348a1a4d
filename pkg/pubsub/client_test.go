package pubsub

import (
	"testing"

	"github.com/proofpulse/proofpulse-backend/pkg/config"
)

func TestClientOptionsSelectCredentials(t *testing.T) {
	cases := []struct {
		name string
		gcp  config.GCPConfig
		want int
	}{
		{name: "default credentials", gcp: config.GCPConfig{}, want: 0},
		{name: "inline json", gcp: config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}, want: 1},
		{name: "credentials file", gcp: config.GCPConfig{ApplicationCredentials: "/etc/gcp/sa.json"}, want: 1},
		{name: "json wins over file", gcp: config.GCPConfig{
			CredentialsJSON:        `{"type":"service_account"}`,
			ApplicationCredentials: "/etc/gcp/sa.json",
		}, want: 1},
		{name: "blank values ignored", gcp: config.GCPConfig{CredentialsJSON: "  ", ApplicationCredentials: " "}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clientOptions(tc.gcp); len(got) != tc.want {
				t.Fatalf("clientOptions returned %d options, want %d", len(got), tc.want)
			}
		})
	}
}
