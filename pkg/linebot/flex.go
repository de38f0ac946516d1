package linebot

import "fmt"

// ProductBubble builds one flex bubble for a product card: hero image, name
// linking to the listing, price, and the source marketplace.
func ProductBubble(name, href, imageURL, siteLabel string, priceTWD float64) map[string]any {
	return map[string]any{
		"type": "bubble",
		"hero": map[string]any{
			"type":        "image",
			"url":         imageURL,
			"size":        "full",
			"aspectRatio": "20:13",
			"aspectMode":  "cover",
		},
		"body": map[string]any{
			"type":   "box",
			"layout": "vertical",
			"contents": []any{
				map[string]any{
					"type":   "text",
					"text":   name,
					"weight": "bold",
					"wrap":   true,
					"action": map[string]any{
						"type":  "uri",
						"label": "open",
						"uri":   href,
					},
				},
				map[string]any{
					"type":   "box",
					"layout": "baseline",
					"contents": []any{
						map[string]any{
							"type":   "text",
							"text":   fmt.Sprintf("NT$ %.0f", priceTWD),
							"weight": "bold",
							"size":   "lg",
						},
						map[string]any{
							"type":  "text",
							"text":  siteLabel,
							"size":  "sm",
							"align": "end",
							"color": "#888888",
						},
					},
				},
			},
		},
	}
}

// Carousel wraps bubbles into a carousel container. LINE caps a carousel at
// twelve bubbles; extras are dropped.
func Carousel(bubbles []map[string]any) map[string]any {
	if len(bubbles) > 12 {
		bubbles = bubbles[:12]
	}
	contents := make([]any, len(bubbles))
	for i, b := range bubbles {
		contents[i] = b
	}
	return map[string]any{
		"type":     "carousel",
		"contents": contents,
	}
}
