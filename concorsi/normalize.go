package concorsi

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength is the shortest keyword token kept by Tokenize, in runes.
const MinTokenLength = 3

var stopWords = map[string]struct{}{
	"agli": {}, "alla": {}, "alle": {}, "allo": {}, "con": {}, "dai": {}, "dal": {},
	"dalla": {}, "degli": {}, "dei": {}, "del": {}, "della": {}, "delle": {}, "dello": {},
	"gli": {}, "nei": {}, "nel": {}, "nella": {}, "nelle": {}, "per": {}, "sui": {},
	"sul": {}, "sulla": {}, "tra": {}, "fra": {}, "una": {}, "uno": {}, "che": {},
	"and": {}, "the": {}, "for": {},
}

// fold lowercases s and strips diacritics: "Università" becomes "universita".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// FoldLabel is the comparison form of free-text labels such as ente and
// sector: lower case, accents stripped, whitespace collapsed.
func FoldLabel(s string) string {
	return fold(collapse(s))
}

// collapse trims s and reduces inner whitespace runs to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize splits free text into keyword tokens: folded, at least
// MinTokenLength runes long, stop words removed, in order of first appearance.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < MinTokenLength {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// NormalizeStatus maps a status label to its canonical value. Empty input
// yields StatusOpen. Unknown labels are returned upper-cased and rejected by
// validation.
func NormalizeStatus(s string) Status {
	switch fold(collapse(s)) {
	case "":
		return StatusOpen
	case "open", "aperto", "aperti", "aperta", "attivo":
		return StatusOpen
	case "chiuso", "chiusi", "closed", "scaduto", "scaduti":
		return StatusClosed
	case "all", "tutti", "tutto", "any":
		return StatusAll
	}
	return Status(strings.ToUpper(collapse(s)))
}

var regions = []string{
	"Abruzzo", "Basilicata", "Calabria", "Campania", "Emilia-Romagna",
	"Friuli-Venezia Giulia", "Lazio", "Liguria", "Lombardia", "Marche", "Molise",
	"Piemonte", "Puglia", "Sardegna", "Sicilia", "Toscana", "Trentino-Alto Adige",
	"Umbria", "Valle d'Aosta", "Veneto",
}

var regionAliases = func() map[string]string {
	aliases := map[string]string{
		"emilia romagna":        "Emilia-Romagna",
		"friuli":                "Friuli-Venezia Giulia",
		"friuli venezia giulia": "Friuli-Venezia Giulia",
		"fvg":                   "Friuli-Venezia Giulia",
		"trentino":              "Trentino-Alto Adige",
		"trentino alto adige":   "Trentino-Alto Adige",
		"alto adige":            "Trentino-Alto Adige",
		"sudtirol":              "Trentino-Alto Adige",
		"valle d aosta":         "Valle d'Aosta",
		"valle daosta":          "Valle d'Aosta",
		"vallee d aoste":        "Valle d'Aosta",
		"lombardy":              "Lombardia",
		"piedmont":              "Piemonte",
		"tuscany":               "Toscana",
		"apulia":                "Puglia",
		"sicily":                "Sicilia",
		"sardinia":              "Sardegna",
		"latium":                "Lazio",
	}
	for _, r := range regions {
		aliases[regionKey(r)] = r
	}
	return aliases
}()

func regionKey(s string) string {
	s = fold(s)
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == '\'' || r == '’' || r == '_' {
			return ' '
		}
		return r
	}, s)
	return collapse(s)
}

// NormalizeRegion maps a region name or alias to its canonical spelling.
// Unknown names are returned trimmed.
func NormalizeRegion(s string) string {
	if canonical, ok := regionAliases[regionKey(s)]; ok {
		return canonical
	}
	return collapse(s)
}

// NormalizeRegime maps work regime labels to FULL_TIME, PART_TIME or an
// upper snake case form of the input.
func NormalizeRegime(s string) string {
	key := strings.NewReplacer("-", " ", "_", " ").Replace(fold(s))
	key = collapse(key)
	switch key {
	case "":
		return ""
	case "full time", "fulltime", "tempo pieno", "full":
		return RegimeFullTime
	case "part time", "parttime", "tempo parziale", "part":
		return RegimePartTime
	}
	return strings.ToUpper(strings.ReplaceAll(key, " ", "_"))
}

// NormalizeRegions canonicalizes, deduplicates and sorts a region list.
func NormalizeRegions(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = NormalizeRegion(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
