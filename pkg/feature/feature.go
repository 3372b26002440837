package feature

// FeatureKind is the kind tag carried by every Feature.
const FeatureKind = "Feature"

// Feature pairs one geometry with a mapping of named properties. Features are
// immutable; Set returns a new value and never alters the receiver. Property
// mappings have no required schema, arbitrary keys are legal.
type Feature struct {
	Kind       string         `json:"kind"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// New creates a feature from a geometry and a set of properties.
// The properties map is not copied; callers hand over ownership.
func New(geometry Geometry, properties map[string]any) Feature {
	if properties == nil {
		properties = map[string]any{}
	}
	return Feature{Kind: FeatureKind, Geometry: geometry, Properties: properties}
}

// Copy returns a feature with an independent properties map.
func (f Feature) Copy() Feature {
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	return New(f.Geometry.Copy(), props)
}

// Get reads a single property. The second return reports whether the key
// exists.
func (f Feature) Get(key string) (any, bool) {
	v, ok := f.Properties[key]
	return v, ok
}

// Set returns a new feature whose properties are the union of the receiver's
// properties and patch; on key collision the patch wins. The receiver is
// unchanged.
func (f Feature) Set(patch map[string]any) Feature {
	props := make(map[string]any, len(f.Properties)+len(patch))
	for k, v := range f.Properties {
		props[k] = v
	}
	for k, v := range patch {
		props[k] = v
	}
	return New(f.Geometry, props)
}

// ToMap returns the serializable form of the feature.
func (f Feature) ToMap() map[string]any {
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		props[k] = v
	}
	return map[string]any{
		"kind":       FeatureKind,
		"geometry":   f.Geometry.ToMap(),
		"properties": props,
	}
}
