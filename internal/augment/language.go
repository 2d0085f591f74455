package augment

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// iso2To3 maps common ISO 639-1 codes onto the 639-3 codes used in records.
var iso2To3 = map[string]string{
	"en": "eng",
	"de": "deu",
	"fr": "fra",
	"es": "spa",
	"it": "ita",
	"nl": "nld",
	"pt": "por",
	"da": "dan",
	"sv": "swe",
	"nb": "nob",
	"no": "nob",
	"fi": "fin",
	"pl": "pol",
	"cs": "ces",
	"el": "ell",
	"hu": "hun",
	"ru": "rus",
	"tr": "tur",
	"ar": "ara",
	"he": "heb",
	"la": "lat",
}

// bibliographicAliases maps ISO 639-2/B codes, still common in catalog
// configuration, onto the 639-3 codes the classifier knows.
var bibliographicAliases = map[string]string{
	"ger": "deu",
	"fre": "fra",
	"dut": "nld",
	"gre": "ell",
	"cze": "ces",
	"ice": "isl",
	"alb": "sqi",
	"arm": "hye",
	"baq": "eus",
	"geo": "kat",
	"mac": "mkd",
	"may": "msa",
	"per": "fas",
	"rum": "ron",
	"slo": "slk",
	"wel": "cym",
}

// codeToLang indexes the classifier's language table by ISO 639-3 code.
var codeToLang = func() map[string]whatlanggo.Lang {
	m := make(map[string]whatlanggo.Lang, len(whatlanggo.Langs))
	for lang, code := range whatlanggo.Langs {
		m[code] = lang
	}
	return m
}()

// NormalizeLanguageCode lowercases a translator-reported language, drops any
// region suffix, and widens two-letter codes to three letters.
func NormalizeLanguageCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, sep := range []string{"-", "_"} {
		if idx := strings.Index(code, sep); idx > 0 {
			code = code[:idx]
		}
	}
	if widened, ok := iso2To3[code]; ok {
		return widened
	}
	return code
}

// canonicalCode resolves a configured language code to the classifier's
// 639-3 vocabulary.
func canonicalCode(code string) string {
	code = NormalizeLanguageCode(code)
	if alias, ok := bibliographicAliases[code]; ok {
		return alias
	}
	return code
}

// DetectLanguage runs trigram classification over text, restricted to the
// expected codes, and answers with the matching expected code. Empty result
// means no expected code could be resolved or nothing was detected.
func DetectLanguage(text string, expected []string) string {
	whitelist := make(map[whatlanggo.Lang]bool, len(expected))
	for _, code := range expected {
		if lang, ok := codeToLang[canonicalCode(code)]; ok {
			whitelist[lang] = true
		}
	}
	if len(whitelist) == 0 || strings.TrimSpace(text) == "" {
		return ""
	}

	detected := whatlanggo.DetectLangWithOptions(text, whatlanggo.Options{Whitelist: whitelist})
	detectedCode, ok := whatlanggo.Langs[detected]
	if !ok {
		return ""
	}
	for _, code := range expected {
		if canonicalCode(code) == detectedCode {
			return code
		}
	}
	return detectedCode
}

// languageDetectionText assembles the classified text per the journal's
// source-field selector. A short title is padded with the abstract.
func languageDetectionText(rec *MetadataRecord, selector string) string {
	const minimumTokenSpaces = 5
	switch selector {
	case "", "title":
		text := rec.Title
		if strings.Count(text, " ") < minimumTokenSpaces {
			text += " " + rec.AbstractNote
		}
		return text
	case "abstract":
		return rec.AbstractNote
	case "title+abstract":
		return rec.Title + " " + rec.AbstractNote
	default:
		return rec.Title
	}
}
