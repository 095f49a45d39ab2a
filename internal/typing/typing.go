package typing

// Unit is the empty result of effectful pipelines.
type Unit = struct{}
