// Package strategy decides how a source object is relocated.
package strategy

import "github.com/olaaustine/awsmultic/s3types"

// Select picks the relocation strategy for an object of size bytes.
//
// Objects strictly smaller than threshold are copied in a single shot.
// An object of exactly threshold bytes goes multipart: with the default
// 5 GiB threshold that is the first size CopyObject is no longer
// guaranteed to accept. A threshold <= 0 selects DefaultSizeThreshold.
func Select(size, threshold int64) s3types.Strategy {
	if threshold <= 0 {
		threshold = s3types.DefaultSizeThreshold
	}
	if size < threshold {
		return s3types.StrategySingleShot
	}
	return s3types.StrategyMultipart
}
