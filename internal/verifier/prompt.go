package verifier

// verdictSystem primes the backend for strict, terse adjudication.
const verdictSystem = `You are a strict verifier. You judge whether a produced answer satisfies the acceptance criteria for a task step. You never fix the answer, you only judge it.`

// verdictPrompt renders the step description, its acceptance criteria
// and the produced answer. The response format is parsed by
// parseVerdict.
const verdictPrompt = `Judge whether the answer below satisfies the step's acceptance criteria.

Step: %s

Acceptance criteria:
%s

Answer:
%s

Respond in exactly this format:
VERDICT: PASS, FAIL, or ABSTAIN
RATIONALE: one or two sentences

Return PASS only when the answer clearly satisfies every criterion.
Return FAIL when it clearly does not, and name the unmet criterion.
Return ABSTAIN when the answer alone does not let you decide.`
