package auspost

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Validation messages surfaced to clients. Failure messages interpolate the
// caller's original input text, not the normalized form.
const (
	MsgValid           = "The postcode, suburb, and state input are valid."
	MsgPostcodeFormat  = "Postcode must be 4 digits."
	MsgSuburbRequired  = "Suburb is required."
	MsgInvalidState    = "Invalid state."
	msgPostcodeNoState = "The postcode %s does not exist in the state %s."
	msgSuburbNoMatch   = "The postcode %s does not match the suburb %s."
)

var postcodeRegex = regexp.MustCompile(`^\d{4}$`)

var validStates = map[string]struct{}{
	"NSW": {}, "VIC": {}, "QLD": {}, "SA": {},
	"WA": {}, "TAS": {}, "NT": {}, "ACT": {},
}

var nonAlnumRuns = regexp.MustCompile(`[^A-Z0-9]+`)

// Result is the outcome of one validation attempt. Lat/Lng are set only on
// success and only when the matched candidate carried usable coordinates.
type Result struct {
	Success bool
	Message string
	Lat     *float64
	Lng     *float64
}

// LocalityFetcher is the slice of Client the validator needs.
type LocalityFetcher interface {
	FetchLocalities(ctx context.Context, q, state string) ([]Locality, error)
}

type Validator struct {
	localities LocalityFetcher
}

func NewValidator(localities LocalityFetcher) *Validator {
	return &Validator{localities: localities}
}

func upperTrim(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// fuzzyKey normalizes a suburb name for loose matching: uppercase, runs of
// non-alphanumerics become one space, whitespace collapsed and trimmed.
func fuzzyKey(s string) string {
	withSpaces := nonAlnumRuns.ReplaceAllString(upperTrim(s), " ")
	return strings.Join(strings.Fields(withSpaces), " ")
}

// Validate checks a postcode/suburb/state triple against the locality API.
// Precondition violations short-circuit without an external call. An error
// return means the upstream call itself failed; a Success=false Result is a
// normal negative outcome.
func (v *Validator) Validate(ctx context.Context, postcode, suburb, state string) (Result, error) {
	pc := upperTrim(postcode)
	sb := upperTrim(suburb)
	sbFuzzy := fuzzyKey(suburb)
	st := upperTrim(state)

	if !postcodeRegex.MatchString(pc) {
		return Result{Success: false, Message: MsgPostcodeFormat}, nil
	}
	if sb == "" {
		return Result{Success: false, Message: MsgSuburbRequired}, nil
	}
	if _, ok := validStates[st]; !ok {
		return Result{Success: false, Message: MsgInvalidState}, nil
	}

	list, err := v.localities.FetchLocalities(ctx, pc, st)
	if err != nil {
		return Result{}, err
	}

	candidates := make([]Locality, 0, len(list))
	for _, loc := range list {
		if upperTrim(loc.State) != st {
			continue
		}
		if strings.TrimSpace(loc.Postcode) != pc {
			continue
		}
		candidates = append(candidates, loc)
	}

	if len(candidates) == 0 {
		return Result{
			Success: false,
			Message: fmt.Sprintf(msgPostcodeNoState, postcode, state),
		}, nil
	}

	// Strict equality first, then fuzzy. First match in upstream order wins.
	hit := -1
	for i, loc := range candidates {
		if upperTrim(loc.Location) == sb {
			hit = i
			break
		}
	}
	if hit < 0 {
		for i, loc := range candidates {
			key := fuzzyKey(loc.Location)
			if key == sbFuzzy ||
				strings.HasPrefix(key, sbFuzzy) ||
				strings.HasPrefix(sbFuzzy, key) ||
				strings.Contains(key, sbFuzzy) {
				hit = i
				break
			}
		}
	}

	if hit < 0 {
		return Result{
			Success: false,
			Message: fmt.Sprintf(msgSuburbNoMatch, postcode, suburb),
		}, nil
	}

	return Result{
		Success: true,
		Message: MsgValid,
		Lat:     candidates[hit].Latitude.Float(),
		Lng:     candidates[hit].Longitude.Float(),
	}, nil
}
