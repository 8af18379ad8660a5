package speech

import "strings"

// voiceAliases maps tutor profile voice ids to Volcengine speakers.
var voiceAliases = map[string]string{
	"tokyo-cafe-host":  "multi_female_shuangkuaisisi_moon_bigtts",
	"kyoto-guide":      "multi_male_jingqiangkanye_moon_bigtts",
	"madrid-neighbour": "multi_female_gaolengyujie_moon_bigtts",
	"ja_default":       "multi_female_shuangkuaisisi_moon_bigtts",
	"en_default":       "en_female_amy_jupiter_bigtts",
}

// NormalizeVoiceAlias resolves a profile voice alias to a speaker id. Unknown
// values are returned trimmed so raw speaker ids pass through.
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := voiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

// speakerCandidates returns the requested speaker followed by the configured
// fallback, resolved and without case-insensitive duplicates.
func speakerCandidates(requested, fallback string) []string {
	var out []string
	for _, s := range []string{requested, fallback} {
		s = NormalizeVoiceAlias(s)
		if s == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

const (
	resourceTTSDefault = "volc.service_type.10029"
	resourceTTSMega    = "volc.megatts.default"
	resourceTTSSeed    = "seed-tts-2.0"
)

var seedVoiceHints = []string{
	"bigtts", "seed", "megatts", "uranus", "venus", "jupiter",
	"saturn", "neptune", "mercury", "pluto", "mars", "moon",
}

// resourceCandidates orders the TTS resource ids to try for a speaker.
func resourceCandidates(speaker string) []string {
	speaker = strings.TrimSpace(speaker)
	if strings.HasPrefix(speaker, "S_") {
		return []string{resourceTTSMega}
	}

	lower := strings.ToLower(speaker)
	for _, hint := range seedVoiceHints {
		if lower != "" && strings.Contains(lower, hint) {
			return []string{resourceTTSSeed, resourceTTSDefault}
		}
	}
	return []string{resourceTTSDefault, resourceTTSSeed}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
