package planner

// decompositionPrompt is the prompt template for plan decomposition.
const decompositionPrompt = `Break this request into the smallest set of steps that together resolve it. Each step should be completable by a single agent.

Request:
%s

Return ONLY a JSON array of steps with this exact structure (no other text):
[
  {
    "desc": "What this step must accomplish",
    "capability": "research|analysis|writing|coding|general",
    "difficulty": 0.4,
    "depends_on": ["desc of an earlier step"],
    "criteria": "How to tell this step succeeded"
  }
]

Guidelines:
- Steps should be as independent as possible so they can run in parallel
- Only add a dependency when one step truly needs another's output
- difficulty is your estimate in (0, 1]: near 0 for mechanical lookups, near 1 for open-ended design or debugging work
- Every step needs a capability tag; use "general" only when nothing fits
- criteria must be specific and checkable, not "works correctly"
- Use an empty array [] for depends_on when there are none
- depends_on entries repeat the desc of the step they wait on, or its 1-based position`

// refinePrompt re-poses decomposition with feedback from execution.
const refinePrompt = `A plan for this work is being revised. Produce a corrected plan in the same JSON format, keeping steps that are still right and replacing the ones the feedback invalidates.

Current plan:
%s

Execution feedback:
%s

Return ONLY the corrected JSON array of steps, same structure as before:
[
  {
    "desc": "...",
    "capability": "research|analysis|writing|coding|general",
    "difficulty": 0.4,
    "depends_on": [],
    "criteria": "..."
  }
]`

// probeQueryPrompt asks for minimal verification queries for one
// plan-sensitive step.
const probeQueryPrompt = `This plan step rests on assumptions that could invalidate later steps if wrong:

%s

List at most 2 short, cheap probe queries that would verify the most critical assumption before work begins. One per line, no numbering, no other text. Reply NONE if no probe is worth running.`

// probeSystem frames probe execution as a quick factual check.
const probeSystem = `You answer short verification queries. Reply in at most three sentences with the most decision-relevant facts. If you cannot verify, say what is uncertain.`
