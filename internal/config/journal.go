package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// HarvestType selects the URL discovery strategy for a journal.
type HarvestType string

// Supported harvest types.
const (
	HarvestDirect HarvestType = "DIRECT"
	HarvestRSS    HarvestType = "RSS"
	HarvestCrawl  HarvestType = "CRAWL"
)

// DeliveryMode scopes delivery tracking. NONE skips tracking entirely.
type DeliveryMode string

// Supported delivery modes.
const (
	DeliveryNone DeliveryMode = "NONE"
	DeliveryTest DeliveryMode = "TEST"
	DeliveryLive DeliveryMode = "LIVE"
)

// GlobalParams holds process-wide harvest settings from the journal config's
// default section. Loaded once per run, read-only afterwards.
type GlobalParams struct {
	TranslationServerURL     string
	CommonStrptimeFormat     string
	SkipOnlineFirstUncond    bool
	DefaultDownloadDelay     time.Duration
	MaxDownloadDelay         time.Duration
	RSSHarvestInterval       time.Duration
	ForceProcessFeedsNoDates bool
	CrawlTimeout             time.Duration
	DownloadTimeout          time.Duration
	// SupportedURLs gates crawl-discovered pages; nil matches everything.
	SupportedURLs *regexp.Regexp
	// AuthorNameBlacklist tokens are stripped from creator names during
	// augmentation.
	AuthorNameBlacklist []string
}

// GroupParams describes one delivery group. Immutable after load.
type GroupParams struct {
	Name                 string
	ISIL                 string
	UserAgent            string
	OutputFolder         string
	AuthorSWBLookupURL   string
	AuthorLobidQueryPart string
}

// Validate enforces required group fields.
func (g *GroupParams) Validate() error {
	if g.ISIL == "" {
		return fmt.Errorf("group %q: isil must be set", g.Name)
	}
	if g.UserAgent == "" {
		return fmt.Errorf("group %q: user_agent must be set", g.Name)
	}
	return nil
}

// ExpectedLanguages captures the zotero_expected_languages value: an optional
// '*' prefix forces automatic detection, an optional "<field>:" selector names
// the text field classification runs on, and the remainder is a comma list.
type ExpectedLanguages struct {
	ForceAutomatic bool
	Selector       string
	Codes          []string
}

// Contains reports whether a language code is in the expected set.
func (e ExpectedLanguages) Contains(code string) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// OverrideRule replaces a metadata field's value before interpretation.
// %org% inside Value substitutes the original field content.
type OverrideRule struct {
	Field string
	Value string
}

// SuppressionRule blanks a metadata field whose value matches Pattern.
type SuppressionRule struct {
	Field   string
	Pattern *regexp.Regexp
}

// ExclusionRule drops the whole item when the field's value matches Pattern.
type ExclusionRule struct {
	Field   string
	Pattern *regexp.Regexp
}

// AddFieldRule injects a custom record field after generation. Spec is the
// raw field template, e.g. "084  a%ssgn%"; placeholders resolve against the
// record's custom metadata.
type AddFieldRule struct {
	Label string
	Spec  string
}

// MarcFilterRule matches a generated record field (tag, or tag+subfield)
// against Pattern. Used for both field removal and whole-record exclusion.
type MarcFilterRule struct {
	Tag         string
	Subfield    byte
	HasSubfield bool
	Pattern     *regexp.Regexp
}

// JournalParams describes one journal. Immutable after load; concurrent
// harvest operations share the same instance read-only.
type JournalParams struct {
	Name         string
	ZederID      int
	Group        string
	URL          string
	Type         HarvestType
	DeliveryMode DeliveryMode

	OnlinePPN  string
	PrintPPN   string
	OnlineISSN string
	PrintISSN  string

	SSGN    string
	License string

	StrptimeFormat string
	UpdateWindow   int // days; 0 disables the cutoff

	ReviewRegex       *regexp.Regexp
	ExpectedLanguages ExpectedLanguages

	MaxCrawlDepth   int
	ExtractionRegex *regexp.Regexp
	CrawlURLRegex   *regexp.Regexp

	Overrides     []OverrideRule
	Suppressions  []SuppressionRule
	Exclusions    []ExclusionRule
	AddFields     []AddFieldRule
	RemoveFields  []MarcFilterRule
	ExcludeFields []MarcFilterRule
}

// Validate enforces the per-journal invariants that must fail at load time.
func (j *JournalParams) Validate() error {
	if j.URL == "" {
		return fmt.Errorf("journal %q: zotero_url must be set", j.Name)
	}
	switch j.Type {
	case HarvestDirect, HarvestRSS, HarvestCrawl:
	default:
		return fmt.Errorf("journal %q: zotero_type must be DIRECT, RSS or CRAWL, got %q", j.Name, j.Type)
	}
	switch j.DeliveryMode {
	case DeliveryNone, DeliveryTest, DeliveryLive:
	default:
		return fmt.Errorf("journal %q: zotero_delivery_mode must be NONE, TEST or LIVE, got %q", j.Name, j.DeliveryMode)
	}
	if j.OnlineISSN == "" && j.PrintISSN == "" {
		return fmt.Errorf("journal %q: at least one of online_issn/print_issn must be set", j.Name)
	}
	if j.Type == HarvestCrawl && j.MaxCrawlDepth <= 0 {
		return fmt.Errorf("journal %q: zotero_max_crawl_depth must be > 0 for CRAWL journals", j.Name)
	}
	switch j.ExpectedLanguages.Selector {
	case "", "title", "abstract", "title+abstract":
	default:
		return fmt.Errorf("journal %q: unknown language detection field %q", j.Name, j.ExpectedLanguages.Selector)
	}
	return nil
}

// HarvesterConfig bundles the loaded journal configuration.
type HarvesterConfig struct {
	Global   GlobalParams
	Groups   map[string]*GroupParams
	Journals []*JournalParams
}

// GroupFor resolves a journal's group, falling back to the sole configured
// group when the journal does not name one.
func (h *HarvesterConfig) GroupFor(j *JournalParams) (*GroupParams, error) {
	if j.Group != "" {
		g, ok := h.Groups[j.Group]
		if !ok {
			return nil, fmt.Errorf("journal %q: unknown group %q", j.Name, j.Group)
		}
		return g, nil
	}
	if len(h.Groups) == 1 {
		for _, g := range h.Groups {
			return g, nil
		}
	}
	return nil, fmt.Errorf("journal %q: zotero_group must be set when multiple groups exist", j.Name)
}

// Journal looks a journal up by name.
func (h *HarvesterConfig) Journal(name string) (*JournalParams, bool) {
	for _, j := range h.Journals {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// Key prefixes for the repeatable per-journal rules. The suffix after the
// prefix is the metadata field name (case preserved) or the filter selector.
const (
	prefixOverride     = "override_json_field_"
	prefixSuppress     = "suppress_json_field_"
	prefixExcludeJSON  = "exclude_if_json_field_"
	prefixAddMarc      = "add_marc_field_"
	prefixRemoveMarc   = "remove_marc_field_"
	prefixExcludeMarc  = "exclude_if_marc_field_"
	groupsKey          = "groups"
	supportedURLsKey   = "supported_url_file"
	translationURLKey  = "translation_server_url"
	defaultUpdateDelay = 0
)

// LoadJournals parses the harvester INI file: global keys in the default
// section, one section per group (named by the groups key), every remaining
// section a journal. Key case is preserved, which the repeatable
// override/suppress rules depend on.
func LoadJournals(path string) (*HarvesterConfig, error) {
	file, err := ini.LoadSources(ini.LoadOptions{}, path)
	if err != nil {
		return nil, fmt.Errorf("load journal config %s: %w", path, err)
	}

	cfg := &HarvesterConfig{Groups: make(map[string]*GroupParams)}

	def := file.Section(ini.DefaultSection)
	if err := parseGlobal(def, &cfg.Global); err != nil {
		return nil, err
	}

	groupNames := make(map[string]bool)
	for _, name := range strings.Split(def.Key(groupsKey).String(), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		groupNames[name] = true
	}

	for _, sec := range file.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			continue
		}
		if groupNames[name] {
			g := parseGroup(name, sec)
			if err := g.Validate(); err != nil {
				return nil, err
			}
			cfg.Groups[name] = g
			continue
		}
		j, err := parseJournal(name, sec, cfg.Global)
		if err != nil {
			return nil, err
		}
		if err := j.Validate(); err != nil {
			return nil, err
		}
		cfg.Journals = append(cfg.Journals, j)
	}

	for _, j := range cfg.Journals {
		if _, err := cfg.GroupFor(j); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func parseGlobal(sec *ini.Section, g *GlobalParams) error {
	g.TranslationServerURL = sec.Key(translationURLKey).String()
	if g.TranslationServerURL == "" {
		return fmt.Errorf("global: %s must be set", translationURLKey)
	}
	g.CommonStrptimeFormat = sec.Key("common_strptime_format").String()
	g.SkipOnlineFirstUncond = sec.Key("skip_online_first_articles_unconditionally").MustBool(false)
	g.DefaultDownloadDelay = time.Duration(sec.Key("default_download_delay_time").MustInt(0)) * time.Millisecond
	g.MaxDownloadDelay = time.Duration(sec.Key("max_download_delay_time").MustInt(0)) * time.Millisecond
	g.RSSHarvestInterval = time.Duration(sec.Key("journal_rss_harvest_interval").MustInt(0)) * time.Minute
	g.ForceProcessFeedsNoDates = sec.Key("force_process_feeds_with_no_pub_dates").MustBool(false)
	g.CrawlTimeout = time.Duration(sec.Key("timeout_crawl_operation").MustInt(0)) * time.Millisecond
	g.DownloadTimeout = time.Duration(sec.Key("timeout_download_request").MustInt(0)) * time.Millisecond

	if urlFile := sec.Key(supportedURLsKey).String(); urlFile != "" {
		combined, err := loadSupportedURLs(urlFile)
		if err != nil {
			return err
		}
		g.SupportedURLs = combined
	}

	if blacklistFile := sec.Key("author_name_blacklist_file").String(); blacklistFile != "" {
		tokens, err := loadLineTokens(blacklistFile)
		if err != nil {
			return fmt.Errorf("read author name blacklist: %w", err)
		}
		g.AuthorNameBlacklist = tokens
	}
	return nil
}

// loadLineTokens reads one token per line, skipping blanks and comments.
func loadLineTokens(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokens []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	return tokens, nil
}

// loadSupportedURLs reads one pattern per line and combines them into a
// single alternation, so any line matching means the URL is supported.
func loadSupportedURLs(path string) (*regexp.Regexp, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read supported url file: %w", err)
	}
	var parts []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, "(?:"+line+")")
	}
	if len(parts) == 0 {
		return nil, nil
	}
	combined, err := regexp.Compile(strings.Join(parts, "|"))
	if err != nil {
		return nil, fmt.Errorf("compile supported url patterns: %w", err)
	}
	return combined, nil
}

func parseGroup(name string, sec *ini.Section) *GroupParams {
	return &GroupParams{
		Name:                 name,
		ISIL:                 sec.Key("isil").String(),
		UserAgent:            sec.Key("user_agent").String(),
		OutputFolder:         sec.Key("output_folder").String(),
		AuthorSWBLookupURL:   sec.Key("author_swb_lookup_url").String(),
		AuthorLobidQueryPart: sec.Key("author_lobid_lookup_query_params").String(),
	}
}

func parseJournal(name string, sec *ini.Section, global GlobalParams) (*JournalParams, error) {
	j := &JournalParams{
		Name:          name,
		ZederID:       sec.Key("zeder_id").MustInt(0),
		Group:         sec.Key("zotero_group").String(),
		URL:           sec.Key("zotero_url").String(),
		Type:          HarvestType(strings.ToUpper(sec.Key("zotero_type").String())),
		DeliveryMode:  DeliveryMode(strings.ToUpper(sec.Key("zotero_delivery_mode").MustString(string(DeliveryNone)))),
		OnlinePPN:     sec.Key("online_ppn").String(),
		PrintPPN:      sec.Key("print_ppn").String(),
		OnlineISSN:    sec.Key("online_issn").String(),
		PrintISSN:     sec.Key("print_issn").String(),
		SSGN:          sec.Key("ssgn").String(),
		License:       sec.Key("license").String(),
		UpdateWindow:  sec.Key("zotero_update_window").MustInt(defaultUpdateDelay),
		MaxCrawlDepth: sec.Key("zotero_max_crawl_depth").MustInt(0),
	}

	// The journal's format takes precedence; the global format stays as the
	// fallback, joined with '|' so the date parser tries both.
	j.StrptimeFormat = sec.Key("zotero_strptime_format").String()
	if global.CommonStrptimeFormat != "" {
		if j.StrptimeFormat != "" {
			j.StrptimeFormat += "|" + global.CommonStrptimeFormat
		} else {
			j.StrptimeFormat = global.CommonStrptimeFormat
		}
	}

	var err error
	if j.ReviewRegex, err = compileKey(sec, "zotero_review_regex", name); err != nil {
		return nil, err
	}
	if j.ExtractionRegex, err = compileKey(sec, "zotero_extraction_regex", name); err != nil {
		return nil, err
	}
	if j.CrawlURLRegex, err = compileKey(sec, "zotero_crawl_url_regex", name); err != nil {
		return nil, err
	}

	j.ExpectedLanguages = parseExpectedLanguages(sec.Key("zotero_expected_languages").String())

	if err := parseRules(sec, j); err != nil {
		return nil, err
	}
	return j, nil
}

func compileKey(sec *ini.Section, key, journal string) (*regexp.Regexp, error) {
	val := sec.Key(key).String()
	if val == "" {
		return nil, nil
	}
	re, err := regexp.Compile(val)
	if err != nil {
		return nil, fmt.Errorf("journal %q: %s: %w", journal, key, err)
	}
	return re, nil
}

func parseExpectedLanguages(raw string) ExpectedLanguages {
	var e ExpectedLanguages
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return e
	}
	if strings.HasPrefix(raw, "*") {
		e.ForceAutomatic = true
		raw = raw[1:]
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		e.Selector = raw[:idx]
		raw = raw[idx+1:]
	}
	for _, code := range strings.Split(raw, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			e.Codes = append(e.Codes, code)
		}
	}
	return e
}

// parseRules scans the section's keys in file order for the repeatable rule
// prefixes. Order is preserved so later rules can rely on earlier ones.
func parseRules(sec *ini.Section, j *JournalParams) error {
	for _, key := range sec.Keys() {
		name, value := key.Name(), key.String()
		switch {
		case strings.HasPrefix(name, prefixOverride):
			j.Overrides = append(j.Overrides, OverrideRule{
				Field: name[len(prefixOverride):],
				Value: value,
			})
		case strings.HasPrefix(name, prefixSuppress):
			re, err := regexp.Compile(value)
			if err != nil {
				return fmt.Errorf("journal %q: %s: %w", j.Name, name, err)
			}
			j.Suppressions = append(j.Suppressions, SuppressionRule{
				Field:   name[len(prefixSuppress):],
				Pattern: re,
			})
		case strings.HasPrefix(name, prefixExcludeJSON):
			re, err := regexp.Compile(value)
			if err != nil {
				return fmt.Errorf("journal %q: %s: %w", j.Name, name, err)
			}
			j.Exclusions = append(j.Exclusions, ExclusionRule{
				Field:   name[len(prefixExcludeJSON):],
				Pattern: re,
			})
		case strings.HasPrefix(name, prefixAddMarc):
			if len(value) < 6 {
				return fmt.Errorf("journal %q: %s: field spec %q too short (need tag, indicators, subfield)", j.Name, name, value)
			}
			j.AddFields = append(j.AddFields, AddFieldRule{
				Label: name[len(prefixAddMarc):],
				Spec:  value,
			})
		case strings.HasPrefix(name, prefixRemoveMarc):
			selector := name[len(prefixRemoveMarc):]
			if len(selector) != 4 {
				return fmt.Errorf("journal %q: %s: selector must be tag plus subfield (4 chars)", j.Name, name)
			}
			rule, err := parseMarcFilter(selector, value)
			if err != nil {
				return fmt.Errorf("journal %q: %s: %w", j.Name, name, err)
			}
			j.RemoveFields = append(j.RemoveFields, rule)
		case strings.HasPrefix(name, prefixExcludeMarc):
			selector := name[len(prefixExcludeMarc):]
			if len(selector) != 3 && len(selector) != 4 {
				return fmt.Errorf("journal %q: %s: selector must be a tag or tag plus subfield", j.Name, name)
			}
			rule, err := parseMarcFilter(selector, value)
			if err != nil {
				return fmt.Errorf("journal %q: %s: %w", j.Name, name, err)
			}
			j.ExcludeFields = append(j.ExcludeFields, rule)
		}
	}
	return nil
}

func parseMarcFilter(selector, pattern string) (MarcFilterRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return MarcFilterRule{}, err
	}
	rule := MarcFilterRule{Tag: selector[:3], Pattern: re}
	if len(selector) == 4 {
		rule.Subfield = selector[3]
		rule.HasSubfield = true
	}
	return rule, nil
}
