package interfaces

import (
	"encoding/json"
	"testing"

	"github.com/go-test/deep"
)

func TestHexBytes_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    HexBytes
		wantErr bool
	}{
		{name: "plain", in: `"00a5ff"`, want: HexBytes{0x00, 0xa5, 0xff}},
		{name: "prefix", in: `"0x0102"`, want: HexBytes{0x01, 0x02}},
		{name: "dump row", in: `"de ad\tbe ef\n"`, want: HexBytes{0xde, 0xad, 0xbe, 0xef}},
		{name: "empty", in: `""`, want: HexBytes{}},
		{name: "odd", in: `"abc"`, wantErr: true},
		{name: "not hex", in: `"zz"`, wantErr: true},
		{name: "not string", in: `[1,2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got HexBytes
			err := json.Unmarshal([]byte(tt.in), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := deep.Equal([]byte(got), []byte(tt.want)); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestHexBytes_MarshalJSON(t *testing.T) {
	got, err := json.Marshal(HexBytes{0x1d, 0x80})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `"1d80"` {
		t.Errorf("Marshal() = %s, want %q", got, `"1d80"`)
	}
}

type countingObserver struct{ n int }

func (o *countingObserver) Notify(interface{}) { o.n++ }

func TestObserverList(t *testing.T) {
	var l ObserverList
	a, b := &countingObserver{}, &countingObserver{}
	l.Subscribe(a)
	l.Subscribe(b)
	l.Notify(nil)
	l.Unsubscribe(a)
	l.Notify(nil)
	if a.n != 1 || b.n != 2 {
		t.Errorf("notifications a=%d b=%d, want 1 and 2", a.n, b.n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}
