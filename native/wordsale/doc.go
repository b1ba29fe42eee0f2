// Package wordsale implements a two-party escrow for trading a private word
// list under mutual collateral. The buyer and seller each pre-register a
// Bloom-filter commitment over their word set; if the buyer disputes the sale
// the seller must reveal the words, which are verified against the registered
// commitment by bit-exact equality, and the stakes settle asymmetrically from
// the verdict. Funds only ever leave through the pull-payment withdraw path.
package wordsale
