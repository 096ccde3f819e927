package synth

// Placeholder kinds.
const (
	KindWebScraper   = "webscraper"
	KindFastAPITools = "fastapi_tools"
	KindDataTools    = "data_tools"
	KindGeneric      = "generic"
)

// Kind maps a package name to its placeholder kind.
func Kind(name string) string {
	switch name {
	case KindWebScraper, KindFastAPITools, KindDataTools:
		return name
	default:
		return KindGeneric
	}
}

// Source returns the entry point script for a placeholder kind.
func Source(kind string) string {
	switch kind {
	case KindWebScraper:
		return baseSource + webScraperSource
	case KindFastAPITools:
		return baseSource + fastAPISource
	case KindDataTools:
		return baseSource + dataToolsSource
	default:
		return baseSource
	}
}

const baseSource = `# Placeholder package generated by pkg-system.
PLACEHOLDER=true

hello() {
	echo "Hello from $PKG_PROVIDER.$PKG_NAME! Package is working."
}

get_info() {
	printf '{"provider":"%s","package":"%s","version":"%s","status":"placeholder"}\n' \
		"$PKG_PROVIDER" "$PKG_NAME" "$PKG_VERSION"
}

process_data() {
	local input="$*"
	printf '{"input":"%s","output":"%s","provider":"%s"}\n' "$input" "${input^^}" "$PKG_PROVIDER"
}
`

const webScraperSource = `
scrape_url() {
	printf '{"url":"%s","status":"unavailable","provider":"%s"}\n' "$1" "$PKG_PROVIDER"
	return 1
}

extract_links() {
	local rest="$*" link
	while [[ $rest == *href=\"* ]]; do
		rest=${rest#*href=\"}
		link=${rest%%\"*}
		rest=${rest#*\"}
		echo "$link"
	done
}

get_page_info() {
	local html="$*" open='<title>' close='</title>' title=""
	if [[ $html == *"$open"*"$close"* ]]; then
		title=${html#*"$open"}
		title=${title%%"$close"*}
	fi
	printf '{"title":"%s","length":%d}\n' "$title" "${#html}"
}
`

const fastAPISource = `
create_app() {
	echo "app $PKG_PROVIDER.$PKG_NAME created (placeholder, no server)"
}

json_response() {
	printf '{"status":%d,"body":%s}\n' "${2:-200}" "${1:-null}"
}

html_response() {
	printf '<!doctype html><html><body>%s</body></html>\n' "$1"
}
`

const dataToolsSource = `
analyze_data() {
	local s="$*"
	printf '{"type":"string","length":%d,"fields":%d}\n' "${#s}" "$#"
}

parse_csv_string() {
	local IFS=, row field sep
	for row in "$@"; do
		sep=""
		printf '['
		for field in $row; do
			printf '%s"%s"' "$sep" "$field"
			sep=,
		done
		printf ']\n'
	done
}

summary_stats() {
	local n=0 sum=0 min="" max="" v
	for v in "$@"; do
		n=$((n + 1))
		sum=$((sum + v))
		if [[ -z $min ]] || (( v < min )); then min=$v; fi
		if [[ -z $max ]] || (( v > max )); then max=$v; fi
	done
	printf '{"count":%d,"sum":%d,"min":%s,"max":%s}\n' "$n" "$sum" "${min:-null}" "${max:-null}"
}
`
