package characteristic

// JSONOptions controls which optional keys Serialize includes, mirroring
// the `meta`, `perms`, `type`, `ev` query flags on GET /characteristics.
type JSONOptions struct {
	IncludeMeta  bool
	IncludePerms bool
	IncludeType  bool
	IncludeEvent bool
}

// Serialize renders the characteristic as a HAP JSON object. aid is passed
// in since a Characteristic does not know its owning accessory. subscribed
// reports this session's current `ev` state for IncludeEvent.
func (c *Characteristic) Serialize(aid uint64, opts JSONOptions, subscribed bool) map[string]interface{} {
	out := map[string]interface{}{
		"aid": aid,
		"iid": c.IID,
	}

	if c.HasPerm(PermRead) {
		if v, err := c.Value(); err == nil {
			out["value"] = v
		}
	}

	if opts.IncludeType {
		out["type"] = c.Type
	}

	if opts.IncludePerms {
		perms := make([]string, len(c.Perms))
		for i, p := range c.Perms {
			perms[i] = string(p)
		}
		out["perms"] = perms
	}

	if opts.IncludeEvent && c.HasPerm(PermEvents) {
		out["ev"] = subscribed
	}

	if opts.IncludeMeta {
		out["format"] = string(c.Format)
		if c.Description != "" {
			out["description"] = c.Description
		}
		if c.Unit != "" {
			out["unit"] = string(c.Unit)
		}
		if c.Constraints.MinValue != nil {
			out["minValue"] = c.Constraints.MinValue
		}
		if c.Constraints.MaxValue != nil {
			out["maxValue"] = c.Constraints.MaxValue
		}
		if c.Constraints.StepValue != nil {
			out["minStep"] = c.Constraints.StepValue
		}
		if c.Constraints.MaxLen != nil {
			out["maxLen"] = *c.Constraints.MaxLen
		}
		if c.Constraints.MaxDataLen != nil {
			out["maxDataLen"] = *c.Constraints.MaxDataLen
		}
		if c.Constraints.ValidValues != nil {
			out["valid-values"] = c.Constraints.ValidValues
		}
		if c.Constraints.ValidValuesRange != nil {
			out["valid-values-range"] = c.Constraints.ValidValuesRange
		}
	}

	return out
}

// FullJSON renders the characteristic the way GET /accessories does: type,
// perms, format and value always present for read-permitted characteristics.
func (c *Characteristic) FullJSON(aid uint64) map[string]interface{} {
	return c.Serialize(aid, JSONOptions{IncludeMeta: true, IncludePerms: true, IncludeType: true}, false)
}
