// Package mlc implements seeded maximum-likelihood classification of
// multi-band rasters.
//
// A run takes one seed cell per land-cover class and a spectral distance
// threshold, and proceeds in three stages:
//
//  1. Region growing (Grow): an 8-connected flood fill from each seed admits
//     neighbours whose Euclidean band distance to the seed's vector is strictly
//     below the threshold.
//  2. Class statistics (Estimate): the mean vector and sample covariance of
//     each region form a Gaussian class model.
//  3. Classification (Classifier): every pixel is assigned the class with the
//     highest log-likelihood, ties going to the lowest class index.
//
// Pipeline orchestrates the stages. All models are built before the sweep
// starts, and per-class determinants and inverses are computed once per run.
//
// # Concurrency
//
// Seeds are grown concurrently, each with its own visited grid and frontier.
// The sweep partitions rows into batches that share a read-only Classifier and
// write disjoint cells of the label raster. Results do not depend on the
// number of workers. Context cancellation is observed between seeds and
// between row batches.
//
// # Errors
//
// DataError, DegenerateRegionError and ClassificationError abort the whole
// run; no partial label raster is ever returned.
package mlc
