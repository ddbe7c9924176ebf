package sqlite

import (
	"net/url"
	"testing"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func Test_optionsFromURL(t *testing.T) {
	type args struct {
		u *url.URL
	}
	tests := []struct {
		name    string
		args    args
		want    Options
		wantErr bool
	}{
		{
			name: "parses absolute path",
			args: args{
				u: mustParseURL("sqlite:///var/lib/app/cache.db?tablename=entries&purgeinterval=1h"),
			},
			want: Options{
				Config:    cache.Config{PurgeInterval: time.Hour},
				Path:      "/var/lib/app/cache.db",
				TableName: "entries",
			},
		},
		{
			name: "parses relative path",
			args: args{
				u: mustParseURL("sqlite://cache.db"),
			},
			want: Options{Path: "cache.db"},
		},
		{
			name: "forwards unknown parameters",
			args: args{
				u: mustParseURL("sqlite://cache.db?_txlock=immediate&_pragma=journal_mode(WAL)&disablepurge=true"),
			},
			want: Options{
				Config: cache.Config{DisablePurge: true},
				Path:   "cache.db",
				Params: url.Values{
					"_txlock": {"immediate"},
					"_pragma": {"journal_mode(WAL)"},
				},
			},
		},
		{
			name: "drops blacklisted parameters",
			args: args{
				u: mustParseURL("sqlite://cache.db?serializer=gob&Path=/etc/passwd"),
			},
			want: Options{Path: "cache.db"},
		},
		{
			name: "returns error for invalid parameters",
			args: args{
				u: mustParseURL("sqlite://cache.db?keymaxlength=long"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := optionsFromURL(tt.args.u)
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

func TestOptions_dsn(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "in-memory with default pragmas",
			opts: Options{},
			want: ":memory:?_pragma=busy_timeout%285000%29&_pragma=case_sensitive_like%281%29",
		},
		{
			name: "caller pragmas replace defaults",
			opts: Options{
				Path:   "cache.db",
				Params: url.Values{"_pragma": {"journal_mode(WAL)"}, "_txlock": {"immediate"}},
			},
			want: "cache.db?_pragma=journal_mode%28WAL%29&_txlock=immediate",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.dsn(); got != tt.want {
				t.Errorf("dsn() = %q, want %q", got, tt.want)
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
