// Package ast defines the restricted expression trees that describe an
// aggregation pipeline.
//
// Every stage of a pipeline (filter, group key, seed, combine, result) carries
// a Lambda whose body is built from a closed set of node variants. Nodes are
// plain immutable structs; the Node interface is sealed with a marker method so
// that the compilers in querysql and scriptgen can switch over every variant
// and reject anything they do not understand with a CompileError instead of
// producing broken output.
//
// Document types are described by an explicit TypeSchema rather than being
// discovered at run time. A schema lists the serializable fields of a type in
// declaration order, the serialized (JSON) name of each field, a default
// literal, and the constructors that may be used with literal arguments.
// Schemas are validated once when they are created, so an unsupported field
// definition fails while a pipeline is being built, never while it runs.
package ast
