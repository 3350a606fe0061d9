// Package download implements one downloader per dataset.
//
// Every downloader follows the same shape: compute the units (trade dates,
// report periods, codes) missing from its table by diffing against the
// stored trade calendar, call the vendor once per unit, reshape the frame,
// make sure the table exists, then bulk write it.
//
// A downloader is split into steps. A failing step is logged with its
// duration and the downloader moves on to its next step; Run returns the
// joined step errors.
package download
