package memcache

import (
	"net/url"
	"testing"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func Test_optionsFromURL(t *testing.T) {
	tests := []struct {
		name    string
		u       *url.URL
		want    Options
		wantErr bool
	}{
		{
			name: "single node",
			u:    mustParseURL("memcache://localhost:11211"),
			want: Options{Addrs: []string{"localhost:11211"}},
		},
		{
			name: "several nodes with options",
			u:    mustParseURL("memcache://localhost:11211,localhost:11212?timeout=1s&maxidleconns=4&disablepurge=true"),
			want: Options{
				Config:       cache.Config{DisablePurge: true},
				Addrs:        []string{"localhost:11211", "localhost:11212"},
				Timeout:      time.Second,
				MaxIdleConns: 4,
			},
		},
		{
			name:    "rejects addrs parameter",
			u:       mustParseURL("memcache://localhost:11211?addrs=other:11211"),
			wantErr: true,
		},
		{
			name:    "rejects unknown parameters",
			u:       mustParseURL("memcache://localhost:11211?unknown=1"),
			wantErr: true,
		},
		{
			name:    "returns error for invalid parameters",
			u:       mustParseURL("memcache://localhost:11211?timeout=soon"),
			wantErr: true,
		},
		{
			name:    "returns error for missing host",
			u:       mustParseURL("memcache://"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := optionsFromURL(tt.u)
			if (err != nil) != tt.wantErr {
				t.Errorf("optionsFromURL() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.IgnoreInterfaces(struct{ cache.Serializer }{})); diff != "" {
				t.Errorf("optionsFromURL() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func mustParseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}
