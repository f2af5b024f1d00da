// Package placeholder resolves the dynamic tokens accepted in filename and
// directory inputs. Three surface syntaxes exist and are kept for saved graphs:
//
//	%year% %month% %day% %hour% %minute% %second% %width% %height%   host path variables
//	%date:yyyy-MM-dd% %date:yyMMddhhmmss%                            description file prefixes
//	@@<strftime format>@@                                             drive directories and names
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var strftimePattern = regexp.MustCompile(`@@(.*?)@@`)

type Resolver struct {
	// Now is the clock used for every token; defaults to time.Now.
	Now func() time.Time
	// Location is the zone @@...@@ tokens are rendered in.
	Location *time.Location
	// Local is the zone %...% tokens are rendered in; defaults to time.Local.
	Local *time.Location
}

func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{
		Now:      time.Now,
		Location: loc,
		Local:    time.Local,
	}
}

func (r *Resolver) now(loc *time.Location) time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	if loc == nil {
		return now()
	}
	return now().In(loc)
}

// Current returns the resolver's clock reading in Location.
func (r *Resolver) Current() time.Time {
	return r.now(r.Location)
}

// Vars expands the host path variables.
func (r *Resolver) Vars(s string, width, height int) string {
	if !strings.Contains(s, "%") {
		return s
	}

	t := r.now(r.Local)
	return strings.NewReplacer(
		"%width%", strconv.Itoa(width),
		"%height%", strconv.Itoa(height),
		"%year%", strconv.Itoa(t.Year()),
		"%month%", fmt.Sprintf("%02d", int(t.Month())),
		"%day%", fmt.Sprintf("%02d", t.Day()),
		"%hour%", fmt.Sprintf("%02d", t.Hour()),
		"%minute%", fmt.Sprintf("%02d", t.Minute()),
		"%second%", fmt.Sprintf("%02d", t.Second()),
	).Replace(s)
}

// Dates expands the two %date:...% tokens. %date:yyMMddhhmmss% renders a four
// digit year; saved graphs depend on that.
func (r *Resolver) Dates(s string) string {
	if !strings.Contains(s, "%date:") {
		return s
	}

	t := r.now(r.Local)
	s = strings.ReplaceAll(s, "%date:yyyy-MM-dd%", t.Format("2006-01-02"))
	s = strings.ReplaceAll(s, "%date:yyMMddhhmmss%", t.Format("20060102150405"))
	return s
}

// Strftime replaces every @@format@@ with the current time rendered in Location.
func (r *Resolver) Strftime(s string) string {
	t := r.now(r.Location)
	return strftimePattern.ReplaceAllStringFunc(s, func(match string) string {
		format := strftimePattern.FindStringSubmatch(match)[1]
		return strftime.Format(format, t)
	})
}
