package cache

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestExpirePolicy_At(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	type args struct {
		grace time.Duration
		at    time.Time
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name:    "Future instant",
			args:    args{grace: DefaultGrace, at: now.Add(time.Minute)},
			wantErr: false,
		},
		{
			name:    "Now",
			args:    args{grace: 0, at: now},
			wantErr: false,
		},
		{
			name:    "Within grace",
			args:    args{grace: DefaultGrace, at: now.Add(-500 * time.Millisecond)},
			wantErr: false,
		},
		{
			name:    "Past grace",
			args:    args{grace: DefaultGrace, at: now.Add(-2 * time.Second)},
			wantErr: true,
		},
		{
			name:    "Strict rejects past",
			args:    args{grace: 0, at: now.Add(-time.Millisecond)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := ExpirePolicy{Grace: tt.args.grace, now: func() time.Time { return now }}
			got, err := p.At(tt.args.at)
			if (err != nil) != tt.wantErr {
				t.Fatalf("At() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidExpiry) {
					t.Errorf("At() error = %v, want ErrValidation and ErrInvalidExpiry", err)
				}
				return
			}
			if !got.Time().Equal(tt.args.at) {
				t.Errorf("At() = %v, want %v", got.Time(), tt.args.at)
			}
		})
	}
}

func TestExpirePolicy_In(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	p := ExpirePolicy{now: func() time.Time { return now }}
	got, err := p.In(time.Hour)
	if err != nil {
		t.Fatalf("In() error = %v", err)
	}
	if want := now.Add(time.Hour); !got.Time().Equal(want) {
		t.Errorf("In() = %v, want %v", got.Time(), want)
	}
	if _, err := p.In(-time.Minute); !errors.Is(err, ErrInvalidExpiry) {
		t.Errorf("In(-1m) error = %v, want ErrInvalidExpiry", err)
	}
}

func TestFactories(t *testing.T) {
	factories := map[string]func(int) (Expire, error){
		"InMilliseconds": InMilliseconds,
		"InSeconds":      InSeconds,
		"InMinutes":      InMinutes,
		"InHours":        InHours,
		"InDays":         InDays,
		"InMonths":       InMonths,
		"InYears":        InYears,
	}
	before := time.Now()
	for name, f := range factories {
		name := name
		f := f
		t.Run(name, func(t *testing.T) {
			e, err := f(1)
			if err != nil {
				t.Fatalf("%s(1) error = %v", name, err)
			}
			if !e.Time().After(before) {
				t.Errorf("%s(1) = %v, want after %v", name, e.Time(), before)
			}
			if _, err := f(-5000); err == nil {
				t.Errorf("%s(-5000) expected error", name)
			}
		})
	}
}

func TestNever(t *testing.T) {
	n := Never()
	if !n.IsNever() {
		t.Error("Never() is not never")
	}
	if n.IsExpired(time.Now()) {
		t.Error("Never() is expired")
	}
	if n.String() != "never" {
		t.Errorf("String() = %q, want never", n.String())
	}
	far, err := At(time.Date(20000, time.January, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !far.Equal(n) {
		t.Errorf("instants beyond never should clamp, got %v", far)
	}
}

func TestExpire_Ordering(t *testing.T) {
	a := Must(InMinutes(1))
	b := Must(InMinutes(2))
	if !a.Before(b) || !b.After(a) {
		t.Error("expected a < b")
	}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("unexpected Compare result")
	}
	if !a.Equal(a) || a.Equal(b) {
		t.Error("unexpected Equal result")
	}
}

func TestExpire_IsExpired(t *testing.T) {
	now := time.Now()
	e := Expire{t: now}
	if !e.IsExpired(now) {
		t.Error("expiry equal to now must be expired")
	}
	if e.IsExpired(now.Add(-time.Nanosecond)) {
		t.Error("expiry after now must not be expired")
	}
}

func TestExpire_JSON(t *testing.T) {
	want := Must(At(time.Date(2100, time.March, 4, 5, 6, 7, 8000, time.UTC)))
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"2100-03-04T05:06:07.000008Z"` {
		t.Errorf("Marshal() = %s", data)
	}
	var got Expire
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Errorf("round trip = %v, want %v", got, want)
	}
	if err := json.Unmarshal([]byte(`"5m"`), &got); !errors.Is(err, ErrSerialization) {
		t.Errorf("Unmarshal(duration) error = %v, want ErrSerialization", err)
	}
}

func TestMust(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Must() did not panic")
		}
	}()
	Must(InSeconds(-60))
}
