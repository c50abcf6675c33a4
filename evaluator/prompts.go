package evaluator

// promptVariants are the system instructions tried in order. Later variants
// restate the format contract more forcefully for models that wrapped the
// previous answer in prose or markdown fences.
var promptVariants = []string{
	`You review governance proposals for a smart-contract account. Decide whether the following proposal should be approved and respond with a JSON object of the exact shape {"vote": <boolean>, "reason": "<short explanation>"}.`,

	`You review governance proposals for a smart-contract account. Decide whether the following proposal should be approved. Respond with raw JSON only, of the exact shape {"vote": <boolean>, "reason": "<short explanation>"}. Do not wrap the object in markdown code fences and do not add any text before or after it.`,

	`You review governance proposals for a smart-contract account. Decide whether the following proposal should be approved. Your entire response must be exactly one JSON object of the shape {"vote": true|false, "reason": "..."} with no code fences, no prose and no trailing text. Any other output is discarded.`,
}
