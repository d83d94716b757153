package display

const vertexShader = `
#version 420

in  vec3 vertPos;
in  vec2 vertTexCoord;
out vec2 fragTexCoord;

void main() {
    fragTexCoord = vertTexCoord;
    gl_Position  = vec4(vertPos, 1);
}
`

// fragmentShader unpacks the RGB332 byte stored in the red channel of
// the uploaded framebuffer texture into a full RGBA color.
const fragmentShader = `
#version 420

layout (binding = 0) uniform sampler2D framebuffer;

in  vec2 fragTexCoord;
out vec4 outputColor;

void main() {
    uint packed = uint(texture2D(framebuffer, fragTexCoord).r * 255);
    float r = float((packed >> 5) & 0x7u) / 7.0;
    float g = float((packed >> 2) & 0x7u) / 7.0;
    float b = float(packed & 0x3u) / 3.0;
    outputColor = vec4(r, g, b, 1.0);
}
`
