package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUsage is returned for malformed or unknown commands.
var ErrUsage = errors.New("session: bad command")

const helpText = `Commands:
  /convert <amount> <from> <to>   convert kitchen units, e.g. /convert 2 tbsp cup
  /city <name>                    set your location by city
  /gps <lat> <lon>                set your location by coordinates
  /ip                             approximate your location from your IP
  /grocery [radius_m]             list nearby grocery stores
  /ask <question>                 answer from the cookbook with sources
  /sources                        show the cookbook passages used last turn
  /where                          show your current location
  /help                           show this help
  /quit                           leave`

func usage(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }
func (e *usageError) Unwrap() error { return ErrUsage }

func (s *Session) command(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	if name == "/help" {
		return helpText, nil
	}
	if name == "/sources" {
		return s.lastSources(), nil
	}
	if name == "/where" {
		return s.where(), nil
	}
	if s.tools == nil {
		return "", usage("tools are not available in this session")
	}

	switch name {
	case "/convert":
		if len(args) != 3 {
			return "", usage("usage: /convert <amount> <from> <to>")
		}
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", usage("%q is not a number", args[0])
		}
		return s.tools.ConvertUnits(amount, args[1], args[2])

	case "/city":
		if len(args) == 0 {
			return "", usage("usage: /city <name>")
		}
		return s.tools.SetLocationCity(ctx, strings.Join(args, " "))

	case "/gps":
		if len(args) != 2 {
			return "", usage("usage: /gps <lat> <lon>")
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSuffix(args[0], ","), 64)
		lon, err2 := strconv.ParseFloat(args[1], 64)
		if err1 != nil || err2 != nil {
			return "", usage("coordinates must be numbers, e.g. /gps 40.7128 -74.0060")
		}
		return s.tools.SetLocationGPS(lat, lon)

	case "/ip":
		return s.tools.UseMyIPLocation(ctx)

	case "/grocery":
		radius := 0
		if len(args) > 0 {
			r, err := strconv.Atoi(args[0])
			if err != nil || r <= 0 {
				return "", usage("radius must be a positive number of meters")
			}
			radius = r
		}
		return s.tools.FindNearbyGrocery(ctx, radius)

	case "/ask":
		if len(args) == 0 {
			return "", usage("usage: /ask <question>")
		}
		return s.tools.AskCookbook(ctx, strings.Join(args, " "))
	}
	return "", usage("unknown command %s; try /help", name)
}

func (s *Session) lastSources() string {
	t := s.LastTurn()
	if t == nil || t.Result == nil || len(t.Result.SourcePassages) == 0 {
		return "No cookbook passages were used last turn."
	}
	var b strings.Builder
	b.WriteString("Cookbook passages used last turn:")
	for i, m := range t.Result.SourcePassages {
		label := m.Passage.Source
		if label == "" {
			label = m.Passage.ID
		}
		fmt.Fprintf(&b, "\n%d. %s (score %.2f)", i+1, label, m.Score)
	}
	return b.String()
}

func (s *Session) where() string {
	loc := s.Location.Get()
	if loc == nil {
		return "No location set."
	}
	if loc.Label != "" {
		return fmt.Sprintf("%s %v via %s", loc.Label, loc.Point, loc.Source)
	}
	return fmt.Sprintf("%v via %s", loc.Point, loc.Source)
}
