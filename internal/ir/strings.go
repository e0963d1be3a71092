package ir

import "github.com/samber/lo"

// CollectLDSStrings returns every string literal an LDS operand in
// program references, in first-occurrence order with duplicates
// removed (spec §3 "String table... De-duplicated"). Backends call this
// once before their per-instruction layout walk so a literal quoted at
// two call sites still claims exactly one string-table slot, and so
// that slot's offset depends on occurrence order rather than walk order.
func CollectLDSStrings(program []Instruction) []string {
	var texts []string
	for _, inst := range program {
		if inst.IsLabel || inst.Op != OpLDS {
			continue
		}
		texts = append(texts, inst.Operands[len(inst.Operands)-1].Str)
	}
	return lo.Uniq(texts)
}
