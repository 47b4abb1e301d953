package ai

// DefaultSystemPrompt is the system-level instruction for extraction requests.
const DefaultSystemPrompt = `You are a precise résumé parser. Your core principles are:

- Extract only information explicitly present in the text
- NEVER invent, infer, or embellish any field
- Dates must be copied as written, formatted as YYYY-MM or YYYY-MM-DD
- Leave the end date empty for positions described as current
- Report a confidence value between 0 and 1 for every top-level field
- Education level must be one of: high_school, associate, bachelor, master, doctorate`

// DefaultUserPrompt is the user prompt template; the single placeholder is
// the normalized résumé text.
const DefaultUserPrompt = `Extract the candidate's structured information from the following résumé text.

Return the name, email addresses, phone numbers, skills, work experience entries
(organization, title, start, end, description) and education entries
(institution, degree, level, field), plus per-field confidence values.

Résumé text:
---
%s
---`
