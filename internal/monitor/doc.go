// Package monitor keeps the most recent processed image and the figure of
// merit history, and renders them for humans: go-echarts debug pages, PNG
// heatmaps through gonum/plot and 16-bit TIFF exports.
package monitor
