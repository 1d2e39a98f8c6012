// Package transcript folds a player's turn-bracketed stderr output under
// the matching simulator turn marker, producing the combined, line
// oriented transcript that becomes a match's published log field.
//
// The simulator writes lines prefixed "TURN, <n>", "COINS, <n>",
// "DESTRUCTION, <f>%", and (versus only) "DELIMITER" to mark a switch in
// which player's log is currently being folded in. A player writes
// "TURN <n>" (no comma) followed by arbitrary print lines, then "ENDLOG",
// once per turn. The comma asymmetry between the two prefixes is
// deliberate and preserved verbatim — see the folding logic in Fold.
package transcript
