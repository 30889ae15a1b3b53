package influxdb

// WriteZoneLevel records one observed zone level for a device.
//
// Measurement zone_level, tagged by device_id, name and type so level
// history can be grouped per device or per Lutron model. Non-blocking.
func (c *Client) WriteZoneLevel(deviceID, name, deviceType string, level int) {
	c.record("zone_level",
		map[string]string{
			"device_id": deviceID,
			"name":      name,
			"type":      deviceType,
		},
		map[string]interface{}{
			"level": level,
		})
}

// WriteSceneActivation records one scene activation.
//
// Measurement scene_activation, tagged by scene_id and name. Non-blocking.
func (c *Client) WriteSceneActivation(sceneID, name string) {
	c.record("scene_activation",
		map[string]string{
			"scene_id": sceneID,
			"name":     name,
		},
		map[string]interface{}{
			"activated": 1,
		})
}
