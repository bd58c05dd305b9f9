package deeplink

import (
	"net/url"
	"strings"
	"testing"
)

func TestChannelURL_pvrLast(t *testing.T) {
	b := Builder{AddonID: "plugin.video.vodkatv"}
	tests := []Channel{
		{ID: "1", FileID: "10"},
		{ID: "2", Name: "M1 & Co", Icon: "http://img/x.png?a=1&b=2", FileID: "20"},
		{ID: "3", Name: "pvr=.pvr", FileID: "30"},
	}
	for _, ch := range tests {
		got := b.ChannelURL(ch)
		if !strings.HasPrefix(got, "plugin://plugin.video.vodkatv/?action=play_channel&") {
			t.Errorf("prefix: %s", got)
		}
		if !strings.HasSuffix(got, "&pvr=.pvr") {
			t.Errorf("pvr not last: %s", got)
		}
		u, err := url.Parse(got)
		if err != nil {
			t.Fatal(err)
		}
		q := u.Query()
		if q.Get("name") != ch.Name || q.Get("icon") != ch.Icon || q.Get("extra") != ch.FileID {
			t.Errorf("round trip lost values: %v", q)
		}
	}
}

func TestCatchupURL(t *testing.T) {
	b := Builder{AddonID: "plugin.video.vodkatv"}
	got := b.CatchupURL(Catchup{ProgramID: "p1", FileID: "f1", Start: 1691592300, End: 1691595000, Restartable: true})
	want := "plugin://plugin.video.vodkatv/?action=play_catchup&id=p1&cid=f1&start=1691592300&end=1691595000&rec=0&res=1"
	if got != want {
		t.Errorf("CatchupURL = %q\nwant %q", got, want)
	}
}

func TestQuery_keepsOrder(t *testing.T) {
	q := &Query{}
	q.Add("z", "1").Add("a", "").Add("m", "x y")
	if got := q.Encode(); got != "z=1&a=&m=x+y" {
		t.Errorf("Encode = %q", got)
	}
}
