package render

// DeepMerge merges src into dst, recursing into nested maps and replacing
// scalars/slices wholesale — the deep-merge choice spec.md §9 calls for
// documenting explicitly for JSON-object-shaped merges (also used for the
// MCP-server merge-target semantics in internal/installer). dst is mutated
// and returned.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if existing, ok := dst[k]; ok {
			if existingMap, ok1 := asMap(existing); ok1 {
				if vMap, ok2 := asMap(v); ok2 {
					dst[k] = DeepMerge(existingMap, vMap)
					continue
				}
			}
		}
		dst[k] = v
	}
	return dst
}

// BuildVariantInputs assembles the template-variable context for a
// dependency: agpm.project / project from the manifest's free-form project
// table, deep-merged with the dependency's own template_vars at the top
// level so `{{ foo }}` resolves directly when a dependency declares
// template_vars: { foo: ... }.
func BuildVariantInputs(project map[string]any, templateVars map[string]any) map[string]any {
	ctx := make(map[string]any)
	ctx["project"] = project
	ctx["agpm"] = map[string]any{
		"project": project,
	}
	if templateVars != nil {
		ctx = DeepMerge(ctx, templateVars)
	}
	return ctx
}

// WithDeps returns a copy of variantInputs with agpm.deps.<type>.<name>.content
// populated from rendered, for pass-2 rendering after transitive resolution.
func WithDeps(variantInputs map[string]any, deps map[string]map[string]string) map[string]any {
	out := make(map[string]any, len(variantInputs))
	for k, v := range variantInputs {
		out[k] = v
	}

	agpmBlock, _ := asMap(out["agpm"])
	if agpmBlock == nil {
		agpmBlock = make(map[string]any)
	} else {
		copied := make(map[string]any, len(agpmBlock))
		for k, v := range agpmBlock {
			copied[k] = v
		}
		agpmBlock = copied
	}

	depsBlock := make(map[string]any, len(deps))
	for typePlural, byName := range deps {
		entries := make(map[string]any, len(byName))
		for name, content := range byName {
			entries[name] = map[string]any{"content": content}
		}
		depsBlock[typePlural] = entries
	}
	agpmBlock["deps"] = depsBlock
	out["agpm"] = agpmBlock

	return out
}
