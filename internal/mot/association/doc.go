// Package association builds track×detection cost matrices and solves the
// resulting assignment problem.
//
// Costs are distances in [0,1] where 0 is a perfect match. Geometry cost is
// 1−IoU between a track's predicted box and a detection; appearance cost is
// half the cosine distance between embeddings. A CostModel combines them and
// a Solver picks the minimum-cost one-to-one assignment, leaving any pair
// above the threshold unmatched.
package association
