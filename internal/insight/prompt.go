package insight

import "strings"

const promptHeader = `Compare the following LinkedIn profiles based on their education details, about, city, country and position, and provide the following insights:
1. Common Ground and Points of Connection:
   - Shared Interests
   - Recent Activities
   - Mutual Connections (if any)
   - Similar Career Paths
   - Relevant Details
2. Suggest casual icebreaker questions that highlight their shared interests and recent activities.

Profile Data: `

const promptFooter = `

Please structure the output as:
- Common Ground and Points of Connection
- Icebreaker Questions
`

// BuildPrompt embeds payload verbatim into the comparison template.
func BuildPrompt(payload []byte) string {
	var b strings.Builder
	b.Grow(len(promptHeader) + len(payload) + len(promptFooter))
	b.WriteString(promptHeader)
	b.Write(payload)
	b.WriteString(promptFooter)
	return b.String()
}
