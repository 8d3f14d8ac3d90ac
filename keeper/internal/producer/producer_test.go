package producer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/profkeeper/keeper/internal/browser"
	"github.com/hazyhaar/profkeeper/keeper/internal/lifecycle"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
)

const profilePage = `<!DOCTYPE html>
<html><head>
<title>sara21 | Profiles</title>
<meta property="og:title" content="sara21 (og)">
</head><body>
<div class="profile" data-profile-id="12345">
  <h1 class="profile-name">sara21</h1>
  <span class="badge">Verified</span>
  <dl>
    <dt>City</dt><dd>Lahore</dd>
    <dt>Country:</dt><dd> Pakistan </dd>
    <dt>Gender</dt><dd>Female</dd>
  </dl>
  <p><b>Age:</b> 24</p>
  <p><b>Joined:</b> 3 years ago</p>
  <ul class="stats">
    <li class="followers"><span class="count">1.2k</span> followers</li>
    <li class="following"><span class="count">310</span> following</li>
  </ul>
  <p>42 posts</p>
  <ul class="interests"><li>Music</li><li>Travel</li></ul>
  <div class="bio"><p>Hello <b>world</b></p><script>alert(1)</script><a href="/u/1">me</a></div>
  <div class="post"><time datetime="2026-10-01 08:15">Oct 1</time></div>
</div>
</body></html>`

type fakeFetcher struct {
	page browser.Page
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (browser.Page, error) {
	f.urls = append(f.urls, u)
	if f.err != nil {
		return browser.Page{}, f.err
	}
	p := f.page
	if p.URL == "" {
		p.URL = u
	}
	return p, nil
}

func TestParse_ProfilePage(t *testing.T) {
	p := New(nil, DefaultRules(), Config{SourceTag: "queue"})
	b, err := p.Parse("https://site.test/u/12345", profilePage)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		record.ColID:          "12345",
		record.ColName:        "sara21",
		record.ColCity:        "Lahore",
		record.ColCountry:     "Pakistan",
		record.ColGender:      "Female",
		record.ColAge:         "24",
		record.ColJoined:      "3 years ago",
		record.ColFollowers:   "1.2k",
		record.ColFollowing:   "310",
		record.ColPosts:       "42",
		record.ColInterests:   "Music\nTravel",
		record.ColLastPost:    "2026-10-01 08:15",
		record.ColProfileLink: "https://site.test/u/12345",
	}
	for col, v := range want {
		if got := b.Fields[col]; got != v {
			t.Errorf("%s = %q, want %q", col, got, v)
		}
	}
	if b.Label != "Verified" || b.FailureReason != "" || b.SourceTag != "queue" {
		t.Fatalf("bundle = %+v", b)
	}
	if !strings.Contains(b.Bio, "Hello **world**") || strings.Contains(b.Bio, "alert") {
		t.Fatalf("bio = %q", b.Bio)
	}
	if lifecycle.Classify(b) != lifecycle.Active {
		t.Fatalf("state = %s", lifecycle.Classify(b))
	}
}

func TestProduce_Timeout(t *testing.T) {
	// WHAT: a page that never loads still yields a bundle, classified dead.
	f := &fakeFetcher{err: browser.ErrTimeout}
	p := New(f, DefaultRules(), Config{ProfileURL: "https://site.test/u/{target}"})
	b, err := p.Produce(context.Background(), "777")
	if err != nil {
		t.Fatal(err)
	}
	if b.FailureReason != ReasonTimeout || b.Field(record.ColID) != "777" {
		t.Fatalf("bundle = %+v", b)
	}
	if lifecycle.Classify(b) != lifecycle.Dead {
		t.Fatalf("state = %s", lifecycle.Classify(b))
	}
	if f.urls[0] != "https://site.test/u/777" {
		t.Fatalf("url = %s", f.urls[0])
	}
}

func TestProduce_NotFound(t *testing.T) {
	f := &fakeFetcher{page: browser.Page{HTML: `<html><body><h2>User does not exist</h2></body></html>`}}
	p := New(f, DefaultRules(), Config{ProfileURL: "https://site.test/u/{target}"})
	b, err := p.Produce(context.Background(), "ghost user")
	if err != nil {
		t.Fatal(err)
	}
	if b.FailureReason != ReasonNotFound || lifecycle.Classify(b) != lifecycle.Dead {
		t.Fatalf("bundle = %+v", b)
	}
	if b.Field(record.ColName) != "ghost user" {
		t.Fatalf("NAME = %q", b.Field(record.ColName))
	}
	if f.urls[0] != "https://site.test/u/ghost%20user" {
		t.Fatalf("url = %s", f.urls[0])
	}
}

func TestProduce_FetchError(t *testing.T) {
	boom := errors.New("net::ERR_CONNECTION_RESET")
	p := New(&fakeFetcher{err: boom}, DefaultRules(), Config{ProfileURL: "https://site.test/{target}"})
	if _, err := p.Produce(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRankedStrategies_FirstHitWins(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<div><span class="b">second</span><span class="a">first</span></div>`))
	v, ok := firstOf(doc, MustStrategies("css:.missing", "css:.a", "css:.b"))
	if !ok || v != "first" {
		t.Fatalf("firstOf = %q, %v", v, ok)
	}
}

func TestParseStrategy(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<html><body>
		<div id="main"><a class="u x" href="/u/9" data-k="v">nine</a></div>
		<table><tr><td>a</td><td>b</td></tr></table>
		<p>Followers: 5</p></body></html>`))
	cases := []struct {
		spec, want string
	}{
		{"css:#main a.u.x", "nine"},
		{"css:a[data-k=v]::attr(href)", "/u/9"},
		{"css:.nope, a", "nine"},
		{"xpath://div[@id='main']/a", "nine"},
		{"xpath:/html/body/table//td[2]", "b"},
		{"xpath://a[contains(@class,'x')]::attr(data-k)", "v"},
		{`re:Followers:\s*(\d+)`, "5"},
		{"label:Followers", ""},
	}
	for _, c := range cases {
		st, err := ParseStrategy(c.spec)
		if err != nil {
			t.Fatalf("%s: %v", c.spec, err)
		}
		got, ok := st.Extract(doc)
		if c.want == "" {
			continue
		}
		if !ok || got != c.want {
			t.Errorf("%s = %q, %v; want %q", c.spec, got, ok, c.want)
		}
	}

	for _, bad := range []string{"nokind", "foo:bar", "re:(", "re:nogroup", "css:a[b", "label:"} {
		if _, err := ParseStrategy(bad); err == nil {
			t.Errorf("ParseStrategy(%q) succeeded", bad)
		}
	}
}

func TestRulesApply(t *testing.T) {
	r, err := DefaultRules().Apply(RulesConfig{
		Fields:   map[string][]string{record.ColCity: {"css:.town"}},
		NotFound: []string{"GONE"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Fields[record.ColCity]) != 1 || len(r.Fields[record.ColCountry]) == 0 {
		t.Fatalf("fields = %v", r.Fields)
	}
	if r.NotFound[0] != "gone" {
		t.Fatalf("NotFound = %v", r.NotFound)
	}
	if _, err := DefaultRules().Apply(RulesConfig{Bio: []string{"bad"}}); err == nil {
		t.Fatal("bad bio rule accepted")
	}
}
