package render

import "regexp"

// Stats counts what a rendering pass produced
type Stats struct {
	TextBlocks int `json:"textBlocks"`
	Headings   int `json:"headings"`
	Lists      int `json:"lists"`
	CodeBlocks int `json:"codeBlocks"`
	Files      int `json:"files"`
	Images     int `json:"images"`
	Tables     int `json:"tables"`
	Grids      int `json:"grids"`
	Toggles    int `json:"toggles"`
	Callouts   int `json:"callouts"`
	Errors     int `json:"errors"`
	Unknown    int `json:"unknown"`
}

var (
	paragraphPattern = regexp.MustCompile(`(?i)<p[\s>]`)
	headingPattern   = regexp.MustCompile(`(?i)<h[1-6][\s>]`)
	listPattern      = regexp.MustCompile(`(?i)<(?:ul|ol)[\s>]`)
	codePattern      = regexp.MustCompile(`(?i)<pre[\s>]`)
	imagePattern     = regexp.MustCompile(`(?i)<img[\s>]`)
	tablePattern     = regexp.MustCompile(`(?i)<table[\s>]|data-block-kind="(?:table|bitable)"`)
	filePattern      = regexp.MustCompile(`class="feishu-file"`)
	gridPattern      = regexp.MustCompile(`data-block-kind="grid"`)
	togglePattern    = regexp.MustCompile(`(?i)<details[\s>]`)
	calloutPattern   = regexp.MustCompile(`class="feishu-callout"`)
	errorPattern     = regexp.MustCompile(`feishu-error`)
	unknownPattern   = regexp.MustCompile(`data-block-kind="unknown"`)
)

// ScanHTML derives Stats from finished HTML by counting tag markers.
// It is used where no block-level counters exist.
func ScanHTML(content string) Stats {
	count := func(re *regexp.Regexp) int {
		return len(re.FindAllStringIndex(content, -1))
	}

	return Stats{
		TextBlocks: count(paragraphPattern),
		Headings:   count(headingPattern),
		Lists:      count(listPattern),
		CodeBlocks: count(codePattern),
		Files:      count(filePattern),
		Images:     count(imagePattern),
		Tables:     count(tablePattern),
		Grids:      count(gridPattern),
		Toggles:    count(togglePattern),
		Callouts:   count(calloutPattern),
		Errors:     count(errorPattern),
		Unknown:    count(unknownPattern),
	}
}
