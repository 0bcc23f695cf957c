package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/**
 * @brief a 4x4 matrix stored row-major and applied to row vectors (v * M),
 * so translation lives in elements 12, 13 and 14.
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents a single vertex in 3D space.
 */
type Vertex3D struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The normal of the vertex. */
	Normal Vec3
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
	/** @brief The colour of the vertex. */
	Colour Vec4
}

/**
 * @brief Represents a single vertex in 2D space.
 */
type Vertex2D struct {
	/** @brief The position of the vertex */
	Position Vec2
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
	/** @brief Packed RGBA8 colour. */
	Colour uint32
}
