package diagnosis

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	labelPattern          = regexp.MustCompile(`(?s)<label\b([^>]*)>(.*?)</label>`)
	attrPattern           = regexp.MustCompile(`(\w+)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
	summaryPattern        = regexp.MustCompile(`(?s)<summary>(.*?)</summary>`)
	recommendationPattern = regexp.MustCompile(`(?s)<recommendation>(.*?)</recommendation>`)
	similarPattern        = regexp.MustCompile(`(?s)<similar_labels>(.*?)</similar_labels>`)
)

// parseLegacy extracts a diagnosis from the tagged text older service
// versions return, e.g.
//
//	<label id_code="L40" score="0.87">Psoriasis</label>
//	<summary>...</summary>
//	<similar_labels><label id_code="L20" score="0.08">Atopic dermatitis</label></similar_labels>
//	<recommendation>...</recommendation>
func parseLegacy(text string) (*Diagnosis, bool) {
	var similarBlock string
	primaryText := text
	if m := similarPattern.FindStringSubmatchIndex(text); m != nil {
		similarBlock = text[m[2]:m[3]]
		primaryText = text[:m[0]] + text[m[1]:]
	}

	primary := labelPattern.FindStringSubmatch(primaryText)
	if primary == nil {
		return nil, false
	}

	attrs := parseAttrs(primary[1])
	similar := labelPattern.FindAllStringSubmatch(similarBlock, -1)

	scores := []float64{score(attrs["score"])}
	for _, m := range similar {
		scores = append(scores, score(parseAttrs(m[1])["score"]))
	}
	scale := scoreScale(scores)

	d := &Diagnosis{
		PredictedDisease: strings.TrimSpace(primary[2]),
		DiseaseCode:      attrs["id_code"],
		Confidence:       percent(scores[0], scale),
		Summary:          firstGroup(summaryPattern, text),
		Recommendation:   firstGroup(recommendationPattern, text),
		SimilarDiseases:  []SimilarDisease{},
	}

	for i, m := range similar {
		d.SimilarDiseases = append(d.SimilarDiseases, SimilarDisease{
			Name:       strings.TrimSpace(m[2]),
			Confidence: percent(scores[i+1], scale),
		})
	}

	return d, true
}

// parseAttrs accepts double quoted, single quoted and bare values
func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2] + m[3] + m[4]
	}
	return attrs
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// score parses one raw score; missing, malformed and negative scores read as 0
func score(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// scoreScale picks one scale for a whole payload. Services send either 0-1
// probabilities or percentages, never a mix, so a payload whose scores all
// fit in [0, 1] is read as probabilities. A lone "1" therefore means 100%,
// while "1" next to "40" means 1%.
func scoreScale(scores []float64) float64 {
	for _, v := range scores {
		if v > 1 {
			return 1
		}
	}
	return 100
}

func percent(v, scale float64) float64 {
	v *= scale
	if v > 100 {
		v = 100
	}
	return v
}
