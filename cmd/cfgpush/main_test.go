package main

import (
	"bytes"
	"testing"

	"cfgpush/internal/deploy"
)

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name string
		d    deploy.Deployment
		want string
	}{
		{
			name: "declined",
			d:    deploy.Deployment{Outcome: deploy.OutcomeDeclined},
			want: "Deployment cancelled.\n",
		},
		{
			name: "done",
			d: deploy.Deployment{
				Outcome: deploy.OutcomeDone,
				Profile: "main",
				Preset:  "raid_on",
				Total:   1,
				Items:   []deploy.ItemResult{{Uploaded: true, BackupPath: "/b/a.json"}},
			},
			want: "Deployed 1 file(s) from raid_on to main.\n  backup: /b/a.json\n",
		},
		{
			name: "second of three fails",
			d: deploy.Deployment{
				Outcome: deploy.OutcomeAborted,
				Total:   3,
				Items:   []deploy.ItemResult{{Uploaded: true}, {Uploaded: false}},
			},
			want: "Deployment aborted after 1 of 3 upload(s).\n",
		},
		{
			name: "aborted before connecting",
			d:    deploy.Deployment{Outcome: deploy.OutcomeAborted, Total: 2},
			want: "Deployment aborted after 0 of 2 upload(s).\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, &tt.d)
			if buf.String() != tt.want {
				t.Errorf("printSummary() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
