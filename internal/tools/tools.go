// Package tools implements the assistant's callable tools on top of the
// geo, units and rag packages. Every tool returns the text shown to the
// user, or an error whose Message is an actionable explanation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kitchencompanion/kitchencompanion/internal/geo"
	"github.com/kitchencompanion/kitchencompanion/internal/logging"
	"github.com/kitchencompanion/kitchencompanion/internal/rag"
	"github.com/kitchencompanion/kitchencompanion/internal/units"
	"github.com/kitchencompanion/kitchencompanion/internal/worker"
)

// Tool names as exposed to callers.
const (
	NameConvertUnits  = "convert_units"
	NameSetCity       = "set_location_city"
	NameSetGPS        = "set_location_gps"
	NameUseIP         = "use_my_ip_location"
	NameFindGrocery   = "find_nearby_grocery_here"
	NameAskCookbook   = "ask_cookbook"
	noLocationMessage = "Location unknown. Say “Set my location to <city>”, or “Use my IP location”, or provide GPS coordinates."
)

// Answerer is satisfied by *rag.Synthesizer.
type Answerer interface {
	AnswerFrom(ctx context.Context, src rag.StoreSource, question string, k int) (rag.Result, error)
}

// Toolbox binds the tools to one session's location and collaborators.
type Toolbox struct {
	Units    *units.Table
	Geo      *geo.Resolver
	Location *geo.UserLocation
	Answerer Answerer
	Store    rag.StoreSource
	Pool     *worker.Pool
	K        int
	Log      *zap.Logger
}

func (t *Toolbox) log() *zap.Logger {
	return logging.OrNop(t.Log).Named("tools")
}

// ConvertUnits converts amount between two kitchen units.
func (t *Toolbox) ConvertUnits(amount float64, from, to string) (string, error) {
	table := t.Units
	if table == nil {
		table = units.Default()
	}
	c, err := table.Convert(amount, from, to)
	if err != nil {
		return "", &Error{Tool: NameConvertUnits, Err: err,
			Msg: fmt.Sprintf("I'm not sure how to convert %s to %s.", strings.TrimSpace(from), strings.TrimSpace(to))}
	}
	return c.String() + ".", nil
}

// SetLocationCity geocodes city and makes it the current location.
func (t *Toolbox) SetLocationCity(ctx context.Context, city string) (string, error) {
	loc, err := worker.Do(ctx, t.Pool, func(ctx context.Context) (geo.Location, error) {
		return t.Geo.SetByPlaceName(ctx, t.Location, city)
	})
	if err != nil {
		msg := fmt.Sprintf("Couldn't find location for '%s'. Try 'City, State/Country' format.", city)
		if !errors.Is(err, geo.ErrGeocodeNotFound) {
			msg = fmt.Sprintf("I had trouble reaching the maps service: %v", err)
		}
		return "", t.fail(NameSetCity, err, msg)
	}
	return fmt.Sprintf("Location set to %s (%.4f, %.4f).", city, loc.Lat, loc.Lon), nil
}

// SetLocationGPS sets explicit coordinates.
func (t *Toolbox) SetLocationGPS(lat, lon float64) (string, error) {
	loc, err := t.Geo.SetByCoordinates(t.Location, lat, lon)
	if err != nil {
		return "", t.fail(NameSetGPS, err, "Those coordinates are out of range. Latitude must be within ±90 and longitude within ±180.")
	}
	return fmt.Sprintf("Location set to (%.4f, %.4f).", loc.Lat, loc.Lon), nil
}

// UseMyIPLocation approximates the location from the public IP.
func (t *Toolbox) UseMyIPLocation(ctx context.Context) (string, error) {
	loc, err := worker.Do(ctx, t.Pool, func(ctx context.Context) (geo.Location, error) {
		return t.Geo.SetByIPApproximation(ctx, t.Location)
	})
	if err != nil {
		return "", t.fail(NameUseIP, err, fmt.Sprintf("Couldn't auto-detect location from IP: %v", err))
	}
	return fmt.Sprintf("Using your IP location: %s (%.4f, %.4f).", loc.Label, loc.Lat, loc.Lon), nil
}

// FindNearbyGrocery lists grocery stores around the current location.
// radius <= 0 uses the configured default.
func (t *Toolbox) FindNearbyGrocery(ctx context.Context, radiusMeters int) (string, error) {
	places, err := worker.Do(ctx, t.Pool, func(ctx context.Context) ([]geo.Place, error) {
		return t.Geo.FindNearbyHere(ctx, t.Location, radiusMeters, geo.CategoryGrocery)
	})
	switch {
	case errors.Is(err, geo.ErrNoLocation):
		return "", t.fail(NameFindGrocery, err, noLocationMessage)
	case err != nil:
		return "", t.fail(NameFindGrocery, err, fmt.Sprintf("I had trouble reaching the maps service: %v", err))
	}
	return geo.FormatPlaces(places), nil
}

// AskCookbook answers question from the cookbook, listing its sources.
func (t *Toolbox) AskCookbook(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", t.fail(NameAskCookbook, errors.New("empty question"), "Ask a cooking question.")
	}
	var (
		res rag.Result
		err = rag.ErrStoreUnavailable
	)
	if t.Answerer != nil && t.Store != nil {
		res, err = worker.Do(ctx, t.Pool, func(ctx context.Context) (rag.Result, error) {
			return t.Answerer.AnswerFrom(ctx, t.Store, question, t.K)
		})
	}
	switch {
	case errors.Is(err, rag.ErrStoreUnavailable):
		return "", t.fail(NameAskCookbook, err, "No cookbook is loaded. Add one with `kitchencompanion ingest <file>`.")
	case err != nil:
		return "", t.fail(NameAskCookbook, err, "I couldn't search the cookbook right now. Try again in a moment.")
	case res.Empty():
		return "The cookbook doesn't cover that.", nil
	}
	return FormatAnswer(res), nil
}

// FormatAnswer renders an answer followed by its numbered sources.
func FormatAnswer(res rag.Result) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.AnswerText))
	if len(res.SourcePassages) > 0 {
		b.WriteString("\n\nSources:")
		for i, m := range res.SourcePassages {
			label := m.Passage.Source
			if label == "" {
				label = m.Passage.ID
			}
			if m.Passage.Page > 0 {
				label = fmt.Sprintf("%s p.%d", label, m.Passage.Page)
			}
			fmt.Fprintf(&b, "\n%d. %s (score %.2f)", i+1, label, m.Score)
		}
	}
	return b.String()
}

func (t *Toolbox) fail(tool string, err error, msg string) error {
	t.log().Info("tool failed", zap.String("tool", tool), zap.Error(err))
	return &Error{Tool: tool, Err: err, Msg: msg}
}

// Error is a tool failure with a message meant for the user.
type Error struct {
	Tool string
	Msg  string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("tools: %s: %v", e.Tool, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Message returns the user-facing text for err.
func Message(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Msg
	}
	return err.Error()
}
