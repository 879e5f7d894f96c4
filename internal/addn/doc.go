// Package addn implements AddN: the elementwise sum of N >= 1 same-shaped
// buffers.
//
// # Summation order
//
// Numeric inputs are reduced in a fixed order. With M = N mod GroupSize, the
// first M inputs are folded into the accumulator in one pass over the output;
// the remaining inputs are then added GroupSize at a time, one pass per
// group. When M is zero the first group initialises the accumulator. Within
// every pass each element is accumulated left to right, so the result equals
// ((in[0] + in[1]) + in[2]) + ... + in[N-1] evaluated in the element type.
//
// Numeric tolerance follows from that order. Integer kinds wrap around and
// are exact. Float32/Float64 and the complex kinds round once per addition;
// an independent summation order agrees within 5e-7 (absolute or relative)
// for well conditioned data. Float16 rounds to half precision after every
// addition, so agreement is only within 5e-3. Reordering the reduction (for
// example a parallel tree) changes the bit pattern of floating point results
// and would need looser bounds.
//
// # Variant inputs
//
// Variant buffers are reduced per element, pairwise and left to right, with
// the combine function the Registry holds for the accumulator's tag.
package addn
