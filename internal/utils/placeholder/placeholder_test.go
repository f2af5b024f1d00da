package placeholder

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

var utc9 = time.FixedZone("JST", 9*3600)

func fixedResolver() *Resolver {
	// 2024-12-31 16:05:09 UTC is already 2025-01-01 in UTC+9.
	now := time.Date(2024, 12, 31, 16, 5, 9, 0, time.UTC)
	return &Resolver{
		Now:      func() time.Time { return now },
		Location: utc9,
		Local:    time.UTC,
	}
}

func TestStrftime(t *testing.T) {
	r := fixedResolver()

	for _, c := range []struct {
		in   string
		want string
	}{
		{in: "@@%Y-%m-%d@@", want: "2025-01-01"},
		{in: "out/@@%Y%m%d@@/@@%H%M%S@@_img", want: "out/20250101/010509_img"},
		{in: "no tokens", want: "no tokens"},
		{in: "@@unterminated", want: "@@unterminated"},
	} {
		must.EqOp(t, c.want, r.Strftime(c.in), must.Sprint(c.in))
	}
}

func TestVars(t *testing.T) {
	r := fixedResolver()

	got := r.Vars("%year%-%month%-%day%/%hour%%minute%%second%_%width%x%height%", 1024, 768)
	must.EqOp(t, "2024-12-31/160509_1024x768", got)
	must.EqOp(t, "ComfyUI", r.Vars("ComfyUI", 1, 1))
}

func TestDates(t *testing.T) {
	r := fixedResolver()

	must.EqOp(t, "desc/2024-12-31/a", r.Dates("desc/%date:yyyy-MM-dd%/a"))
	must.EqOp(t, "20241231160509_x", r.Dates("%date:yyMMddhhmmss%_x"))
	must.EqOp(t, "%date:unknown%", r.Dates("%date:unknown%"))
}

func TestCurrent(t *testing.T) {
	r := fixedResolver()
	must.EqOp(t, "2025-01-01", r.Current().Format("2006-01-02"))
}
